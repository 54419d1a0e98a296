package tts

import (
	"bufio"
	"strings"
)

// Voice is one entry of the synthesizer's voice list.
type Voice struct {
	Name     string // display name, e.g. "English_(Great_Britain)"
	Language string // identifier passed to -v, e.g. "en-gb"
	Gender   string
	File     string
}

// Label is the human-readable voice name.
func (v Voice) Label() string {
	return strings.ReplaceAll(v.Name, "_", " ")
}

// ParseVoices reads `espeak-ng --voices` output:
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 5  en-gb           --/M      English_(Great_Britain) gmw/en
func ParseVoices(output string) []Voice {
	var voices []Voice
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 || fields[0] == "Pty" {
			continue
		}

		gender := fields[2]
		if idx := strings.IndexByte(gender, '/'); idx >= 0 {
			gender = gender[idx+1:]
		}
		voices = append(voices, Voice{
			Name:     fields[3],
			Language: fields[1],
			Gender:   gender,
			File:     fields[4],
		})
	}
	return voices
}

// ResolveVoice picks the voice to speak with: the first voice whose name or
// language contains preferred, else the first English voice. ok is false
// when neither exists and the engine default should be used.
func ResolveVoice(voices []Voice, preferred string) (Voice, bool) {
	if preferred = strings.ToLower(strings.TrimSpace(preferred)); preferred != "" {
		for _, v := range voices {
			if matchesVoice(v, preferred) {
				return v, true
			}
		}
	}
	for _, v := range voices {
		if strings.Contains(strings.ToLower(v.Name), "english") {
			return v, true
		}
	}
	return Voice{}, false
}

func matchesVoice(v Voice, needle string) bool {
	return strings.Contains(strings.ToLower(v.Name), needle) ||
		strings.Contains(strings.ToLower(v.Label()), needle) ||
		strings.EqualFold(v.Language, needle)
}
