// Package locale resolves widget locale identifiers ("en-US", "de",
// "ja_JP") to CLDR translators and provides the localized names and
// relative-day phrases used by the widget.
package locale

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/ar"
	"github.com/go-playground/locales/bg"
	"github.com/go-playground/locales/ca"
	"github.com/go-playground/locales/cs"
	"github.com/go-playground/locales/da"
	"github.com/go-playground/locales/de"
	"github.com/go-playground/locales/el"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/en_AU"
	"github.com/go-playground/locales/en_CA"
	"github.com/go-playground/locales/en_GB"
	"github.com/go-playground/locales/en_US"
	"github.com/go-playground/locales/es"
	"github.com/go-playground/locales/es_MX"
	"github.com/go-playground/locales/et"
	"github.com/go-playground/locales/fa"
	"github.com/go-playground/locales/fi"
	"github.com/go-playground/locales/fr"
	"github.com/go-playground/locales/fr_CA"
	"github.com/go-playground/locales/he"
	"github.com/go-playground/locales/hi"
	"github.com/go-playground/locales/hr"
	"github.com/go-playground/locales/hu"
	"github.com/go-playground/locales/id"
	"github.com/go-playground/locales/it"
	"github.com/go-playground/locales/ja"
	"github.com/go-playground/locales/ko"
	"github.com/go-playground/locales/lt"
	"github.com/go-playground/locales/lv"
	"github.com/go-playground/locales/ms"
	"github.com/go-playground/locales/nb"
	"github.com/go-playground/locales/nl"
	"github.com/go-playground/locales/pl"
	"github.com/go-playground/locales/pt"
	"github.com/go-playground/locales/pt_PT"
	"github.com/go-playground/locales/ro"
	"github.com/go-playground/locales/ru"
	"github.com/go-playground/locales/sk"
	"github.com/go-playground/locales/sl"
	"github.com/go-playground/locales/sr"
	"github.com/go-playground/locales/sv"
	"github.com/go-playground/locales/th"
	"github.com/go-playground/locales/tr"
	"github.com/go-playground/locales/uk"
	"github.com/go-playground/locales/vi"
	"github.com/go-playground/locales/zh"
	"github.com/go-playground/locales/zh_Hant"
	ut "github.com/go-playground/universal-translator"
	"golang.org/x/text/language"
)

// ErrUnsupportedLocale is returned for well-formed locale tags that have
// no translator.
var ErrUnsupportedLocale = errors.New("locale: unsupported locale")

// DefaultLocale is used when the configured locale is empty.
const DefaultLocale = "en-US"

// Phrase keys.
const (
	PhraseToday     = "today"
	PhraseTomorrow  = "tomorrow"
	PhraseDaysAfter = "daysAfter"
)

var phrases = map[string]map[string]string{
	"en": {
		PhraseToday:     "Today",
		PhraseTomorrow:  "Tomorrow",
		PhraseDaysAfter: "{0} days after",
	},
	"ja": {
		PhraseToday:     "今日",
		PhraseTomorrow:  "明日",
		PhraseDaysAfter: "{0}日後",
	},
	"zh": {
		PhraseToday:     "今天",
		PhraseTomorrow:  "明天",
		PhraseDaysAfter: "{0}天後",
	},
}

// supported lists the CLDR translators loaded into a Registry: the widely
// used written languages plus regional variants whose names or time
// patterns differ from their base.
func supported() []locales.Translator {
	return []locales.Translator{
		ar.New(), bg.New(), ca.New(), cs.New(), da.New(), de.New(), el.New(),
		en.New(), en_AU.New(), en_CA.New(), en_GB.New(), en_US.New(),
		es.New(), es_MX.New(), et.New(), fa.New(), fi.New(), fr.New(), fr_CA.New(),
		he.New(), hi.New(), hr.New(), hu.New(), id.New(), it.New(), ja.New(),
		ko.New(), lt.New(), lv.New(), ms.New(), nb.New(), nl.New(), pl.New(),
		pt.New(), pt_PT.New(), ro.New(), ru.New(), sk.New(), sl.New(), sr.New(),
		sv.New(), th.New(), tr.New(), uk.New(), vi.New(), zh.New(), zh_Hant.New(),
	}
}

// Registry holds the supported translators. It is read-only after
// NewRegistry and safe for concurrent use.
type Registry struct {
	uni *ut.UniversalTranslator

	// matcher resolves tags with no exact translator, e.g. "nn" or
	// "sr-Latn", to the closest registered one; names[i] is the
	// translator for the matcher's i-th tag.
	matcher language.Matcher
	names   []string
}

// NewRegistry loads every supported locale and registers the phrase table.
// Locales without their own phrases get the English ones.
func NewRegistry() (*Registry, error) {
	all := supported()
	uni := ut.New(en.New(), all...)

	tags := make([]language.Tag, 0, len(all))
	names := make([]string, 0, len(all))
	for _, l := range all {
		tag, err := language.Parse(strings.ReplaceAll(l.Locale(), "_", "-"))
		if err != nil {
			return nil, fmt.Errorf("locale: register %s: %w", l.Locale(), err)
		}
		tags = append(tags, tag)
		names = append(names, l.Locale())
	}

	for _, l := range all {
		trans, _ := uni.GetTranslator(l.Locale())
		table, ok := phrases[baseOf(l.Locale())]
		if !ok {
			table = phrases["en"]
		}
		for key, text := range table {
			if err := trans.Add(key, text, false); err != nil {
				return nil, fmt.Errorf("locale: register %s/%s: %w", l.Locale(), key, err)
			}
		}
	}
	return &Registry{uni: uni, matcher: language.NewMatcher(tags), names: names}, nil
}

// Translator returns the translator for locale. Exact names are tried
// first ("lang_Script_REGION" down to "lang"), then the closest registered
// locale. A malformed tag returns the parse error.
func (r *Registry) Translator(locale string) (ut.Translator, error) {
	tag, err := parseTag(locale)
	if err != nil {
		return nil, err
	}
	for _, name := range tagNames(tag) {
		if trans, found := r.uni.GetTranslator(name); found {
			return trans, nil
		}
	}
	if _, i, conf := r.matcher.Match(tag); conf != language.No {
		if trans, found := r.uni.GetTranslator(r.names[i]); found {
			return trans, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedLocale, locale)
}

// WeekdayNarrow implements calendar.WeekdayNamer.
func (r *Registry) WeekdayNarrow(locale string, wd time.Weekday) (string, error) {
	trans, err := r.Translator(locale)
	if err != nil {
		return "", err
	}
	return trans.WeekdayNarrow(wd), nil
}

// WeekdayAbbreviated returns e.g. "Mon".
func (r *Registry) WeekdayAbbreviated(locale string, wd time.Weekday) (string, error) {
	trans, err := r.Translator(locale)
	if err != nil {
		return "", err
	}
	return trans.WeekdayAbbreviated(wd), nil
}

// WeekdayWide returns e.g. "Monday".
func (r *Registry) WeekdayWide(locale string, wd time.Weekday) (string, error) {
	trans, err := r.Translator(locale)
	if err != nil {
		return "", err
	}
	return trans.WeekdayWide(wd), nil
}

// MonthWide returns e.g. "March".
func (r *Registry) MonthWide(locale string, m time.Month) (string, error) {
	trans, err := r.Translator(locale)
	if err != nil {
		return "", err
	}
	return trans.MonthWide(m), nil
}

// TimeShort formats t with the locale's short time pattern. A trailing
// lowercase "am"/"pm" is written as "AM"/"PM", and the midnight hour of a
// 12-hour clock as 12.
func (r *Registry) TimeShort(locale string, t time.Time) (string, error) {
	trans, err := r.Translator(locale)
	if err != nil {
		return "", err
	}
	return clock12(trans.FmtTimeShort(t), t), nil
}

func clock12(s string, t time.Time) string {
	for _, p := range []string{" am", " pm"} {
		if !strings.HasSuffix(s, p) {
			continue
		}
		s = strings.TrimSuffix(s, p) + strings.ToUpper(p)
		if t.Hour() == 0 && strings.HasPrefix(s, "0:") {
			s = "12" + s[1:]
		}
		break
	}
	return s
}

// Phrase returns a relative-day phrase with "{0}" style parameters filled.
func (r *Registry) Phrase(locale, key string, params ...string) (string, error) {
	trans, err := r.Translator(locale)
	if err != nil {
		return "", err
	}
	s, err := trans.T(key, params...)
	if err != nil {
		return "", fmt.Errorf("locale: phrase %q: %w", key, err)
	}
	return s, nil
}

func parseTag(locale string) (language.Tag, error) {
	if strings.TrimSpace(locale) == "" {
		locale = DefaultLocale
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return language.Und, fmt.Errorf("locale: parse %q: %w", locale, err)
	}
	return tag, nil
}

func candidates(locale string) ([]string, error) {
	tag, err := parseTag(locale)
	if err != nil {
		return nil, err
	}
	return tagNames(tag), nil
}

// tagNames lists translator names for tag from most to least specific.
// Only subtags written in the tag count; inferred ones are left to the
// matcher.
func tagNames(tag language.Tag) []string {
	base, _ := tag.Base()
	b := base.String()
	script, sconf := tag.Script()
	region, rconf := tag.Region()
	hasScript, hasRegion := sconf == language.Exact, rconf == language.Exact

	out := make([]string, 0, 4)
	if hasScript && hasRegion {
		out = append(out, b+"_"+script.String()+"_"+region.String())
	}
	if hasScript {
		out = append(out, b+"_"+script.String())
	}
	if hasRegion {
		out = append(out, b+"_"+region.String())
	}
	return append(out, b)
}

func baseOf(name string) string {
	b, _, _ := strings.Cut(name, "_")
	return b
}
