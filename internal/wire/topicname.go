package wire

import "strings"

// ValidTopicName reports whether name has a non-empty part before and after
// its first "://" and fits the 63-byte+NUL name field. The characters of
// either part are not checked.
func ValidTopicName(name string) bool {
	if len(name) == 0 || len(name) > TopicNameSize-1 {
		return false
	}

	idx := strings.Index(name, "://")
	if idx <= 0 {
		return false
	}

	return idx+3 < len(name)
}
