// ABOUTME: Station domain model: a named playback source
// ABOUTME: Holds ordered source locators, the first one is played
package station

import "fmt"

type Station struct {
	ID      int64
	Title   string
	URL     string
	Sources []string
}

// PrimarySource returns the locator a session is bound to.
func (s *Station) PrimarySource() (string, bool) {
	if s == nil || len(s.Sources) == 0 {
		return "", false
	}
	return s.Sources[0], true
}

func (s *Station) String() string {
	if s == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s (#%d)", s.Title, s.ID)
}
