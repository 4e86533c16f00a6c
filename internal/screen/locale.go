package screen

import (
	"golang.org/x/text/language"

	"github.com/keithlinneman/oboxads-web/internal/xerrors"
)

// LocaleMatcher picks the best supported language for an Accept-Language
// header. Results are base language codes ("fr", "en") because that is what
// the ad network expects in its lang field.
type LocaleMatcher struct {
	supported []language.Tag
	matcher   language.Matcher
}

func NewLocaleMatcher(supported ...string) (*LocaleMatcher, error) {
	if len(supported) == 0 {
		return nil, xerrors.New("locale matcher needs at least one supported language")
	}
	tags := make([]language.Tag, 0, len(supported))
	for _, s := range supported {
		tag, err := language.Parse(s)
		if err != nil {
			return nil, xerrors.Wrapf(err, "parse supported language %q", s)
		}
		tags = append(tags, tag)
	}
	return &LocaleMatcher{supported: tags, matcher: language.NewMatcher(tags)}, nil
}

// Match returns the negotiated base language. ok is false when the header is
// unparseable or nothing matched with at least low confidence.
func (m *LocaleMatcher) Match(acceptLanguage string) (string, bool) {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return "", false
	}
	_, idx, conf := m.matcher.Match(tags...)
	if conf == language.No {
		return "", false
	}
	base, _ := m.supported[idx].Base()
	return base.String(), true
}
