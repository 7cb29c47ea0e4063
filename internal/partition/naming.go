package partition

import "strings"

// Partition naming contract:
//
//	{prefix}-shell-{version}
//	{prefix}-images-{version}
//	{prefix}-data-{version}
//	{prefix}-{entityId}-{entityVersion}
//
// The shell, images, and data partitions are tied to the deployed shell
// version and are swept when it changes. Entity partitions carry their own
// longer-lived version scheme and survive shell upgrades.
const (
	shellSlot  = "shell"
	imagesSlot = "images"
	dataSlot   = "data"
)

// shellScopedSlots are the reserved slots swept on version change.
var shellScopedSlots = []string{shellSlot, imagesSlot, dataSlot}

// ShellName returns the shell partition name for a version.
func ShellName(prefix, version string) string {
	return prefix + "-" + shellSlot + "-" + version
}

// ImagesName returns the images partition name for a version.
func ImagesName(prefix, version string) string {
	return prefix + "-" + imagesSlot + "-" + version
}

// DataName returns the last-known-good data partition name for a version.
func DataName(prefix, version string) string {
	return prefix + "-" + dataSlot + "-" + version
}

// EntityName returns the partition name for one entity.
func EntityName(prefix, entityID, entityVersion string) string {
	return prefix + "-" + entityID + "-" + entityVersion
}

// IsShellScoped reports whether name is a shell, images, or data partition
// under prefix, regardless of version. The garbage collector deletes
// shell-scoped names whose version is stale; everything else is left alone.
func IsShellScoped(name, prefix string) bool {
	for _, slot := range shellScopedSlots {
		if strings.HasPrefix(name, prefix+"-"+slot+"-") {
			return true
		}
	}
	return false
}

// ShellScopedVersion extracts the version from a shell-scoped partition
// name. Returns "" when name is not shell-scoped under prefix.
func ShellScopedVersion(name, prefix string) string {
	for _, slot := range shellScopedSlots {
		head := prefix + "-" + slot + "-"
		if strings.HasPrefix(name, head) {
			return name[len(head):]
		}
	}
	return ""
}

// IsReservedSlot reports whether an entity ID collides with a reserved
// shell-scoped slot name. An entity named "data" would produce a partition
// name like "cityshelf-data-v2" that the activation sweep reads as a stale
// data slot and deletes, so such IDs are rejected at every entry point.
func IsReservedSlot(id string) bool {
	for _, slot := range shellScopedSlots {
		if id == slot {
			return true
		}
	}
	return false
}

// EntityID extracts the entity ID from an entity partition name. Returns
// ok=false for names that are not entity partitions under this prefix and
// entity version (including shell-scoped names).
func EntityID(name, prefix, entityVersion string) (string, bool) {
	head := prefix + "-"
	tail := "-" + entityVersion
	if !strings.HasPrefix(name, head) || !strings.HasSuffix(name, tail) {
		return "", false
	}
	id := name[len(head) : len(name)-len(tail)]
	if id == "" {
		return "", false
	}
	for _, slot := range shellScopedSlots {
		if id == slot {
			return "", false
		}
	}
	return id, true
}
