package extract

import "strings"

type section int

const (
	inAnswer section = iota
	inSources
	inTools
)

// ParseDelimited scans free text for a "Sources:" and a "Tools used:"
// section. Inside a section, "-" bullets contribute their trimmed remainder
// and any other non-empty line is taken as is; an empty line closes the
// section. All remaining lines form the answer.
func ParseDelimited(text string) Result {
	res := Result{Sources: []string{}, ToolsUsed: []string{}}
	var answer []string
	mode := inAnswer

	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		l := strings.TrimSpace(line)
		switch strings.ToLower(l) {
		case "sources:":
			mode = inSources
			continue
		case "tools used:":
			mode = inTools
			continue
		}

		if mode == inAnswer {
			answer = append(answer, line)
			continue
		}

		if l == "" {
			mode = inAnswer
			continue
		}
		// Bullet-less lines are accepted as items too.
		item := l
		if strings.HasPrefix(l, "-") {
			item = strings.TrimSpace(l[1:])
		}
		if mode == inSources {
			res.Sources = append(res.Sources, item)
		} else {
			res.ToolsUsed = append(res.ToolsUsed, item)
		}
	}

	res.Answer = strings.TrimSpace(strings.Join(answer, "\n"))
	return res
}
