package fallback

import "strings"

// alternativeHint maps operation-text keywords to a safer suggestion.
type alternativeHint struct {
	keywords   []string
	suggestion string
}

var alternativeHints = []alternativeHint{
	{[]string{"rm ", "rm -", "delete", "shred"}, "move the target into a staging directory instead of deleting it"},
	{[]string{"rm ", "rm -", "delete"}, "create a backup before removing anything"},
	{[]string{"curl", "wget", "http://", "https://"}, "fetch the resource through the approved artifact mirror"},
	{[]string{"install", "apt", "pip", "npm"}, "request the package through the managed dependency list"},
	{[]string{"sudo", "chmod", "chown", "su "}, "run the operation without elevated privileges, or file an access request"},
	{[]string{"dd ", "mkfs", "/dev/"}, "operate on a loopback image instead of a raw device"},
	{[]string{"write", ">", "tee", "mv ", "cp "}, "write to a scratch directory and promote the file after review"},
}

// alternativesFor suggests up to max safer ways to achieve what the
// operation appears to attempt. Purely keyword driven: the emergency
// path has no evaluator to ask for anything smarter, and a rough hint
// beats none.
func alternativesFor(operation string, max int) []string {
	if max <= 0 {
		max = 3
	}
	text := strings.ToLower(operation)

	var out []string
	seen := make(map[string]struct{})
	for _, h := range alternativeHints {
		for _, kw := range h.keywords {
			if !strings.Contains(text, kw) {
				continue
			}
			if _, dup := seen[h.suggestion]; !dup {
				seen[h.suggestion] = struct{}{}
				out = append(out, h.suggestion)
			}
			break
		}
		if len(out) == max {
			break
		}
	}

	if len(out) == 0 {
		out = append(out, "wait for the system to return to normal operation and retry")
	}
	return out
}
