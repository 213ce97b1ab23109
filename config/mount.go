package config

// MountOptions holds high-level settings for mounting a tree read-only.
// No go-fuse types are exposed here.
type MountOptions struct {
	Debug        bool    // fuse debug logs
	FsName       string  // mount's FsName
	Name         string  // mount's Name
	EntryTimeout float64 // seconds the kernel may cache lookups (Default 1)
	AttrTimeout  float64 // seconds the kernel may cache attributes (Default 1)
}

// NewDefaultMountOptions returns the options used when nothing overrides them
func NewDefaultMountOptions() MountOptions {
	return MountOptions{
		FsName:       "simfs",
		Name:         "simfs",
		EntryTimeout: 1.0,
		AttrTimeout:  1.0,
	}
}
