package core

import "regexp"

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// ExtractMentions returns the distinct usernames referenced as @name in text,
// in order of first appearance. Names are not checked against any store.
func ExtractMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
