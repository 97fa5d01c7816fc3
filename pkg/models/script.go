// Package models contains the library types the panel derives on every rebuild.
package models

// DirectoryEntry is a visible subdirectory of the library root.
type DirectoryEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ScriptEntry is one launchable file inside a DirectoryEntry.
// Favourite is derived from the favourites set at render time.
type ScriptEntry struct {
	Filename  string `json:"filename"`
	Label     string `json:"label"`
	Path      string `json:"path"`
	Favourite bool   `json:"favourite"`
}

// IsHidden reports whether a subdirectory name marks a hidden or system
// category: a leading "." or a name wrapped in brackets such as "[custom]".
func IsHidden(name string) bool {
	if name == "" || name[0] == '.' {
		return true
	}
	return len(name) >= 2 && name[0] == '[' && name[len(name)-1] == ']'
}

// JoinPath joins a directory and a child name with a forward slash, the
// separator the scripting engine expects on every platform.
func JoinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	if dir[len(dir)-1] == '/' {
		return dir + name
	}
	return dir + "/" + name
}

// BaseName returns the last path segment of p, splitting on either slash.
func BaseName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' || p[i] == '\\' {
			return p[i+1:]
		}
	}
	return p
}
