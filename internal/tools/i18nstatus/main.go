// Package main renders translator-facing catalog coverage reports.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/osusu/osusu/internal/platform/config"
	i18ncatalog "github.com/osusu/osusu/internal/platform/i18n/catalog"
)

type report struct {
	BaseLocale string         `json:"base_locale"`
	Locales    []localeStatus `json:"locales"`
}

type localeStatus struct {
	Locale      string            `json:"locale"`
	BaseKeys    int               `json:"base_keys"`
	Translated  int               `json:"translated"`
	Missing     int               `json:"missing"`
	Extra       int               `json:"extra"`
	Completion  float64           `json:"completion"`
	Namespaces  []namespaceStatus `json:"namespaces"`
	MissingKeys []string          `json:"missing_keys"`
	ExtraKeys   []string          `json:"extra_keys"`
}

type namespaceStatus struct {
	Namespace  string  `json:"namespace"`
	BaseKeys   int     `json:"base_keys"`
	Translated int     `json:"translated"`
	Missing    int     `json:"missing"`
	Extra      int     `json:"extra"`
	Completion float64 `json:"completion"`
}

func main() {
	var baseLocale string
	var markdownOut string
	var jsonOut string

	flag.StringVar(&baseLocale, "base-locale", i18ncatalog.BaseLocale, "base locale used as translation source of truth")
	flag.StringVar(&markdownOut, "out", "docs/i18n-status.md", "markdown output path")
	flag.StringVar(&jsonOut, "json-out", "docs/i18n-status.json", "json output path")
	flag.Parse()

	bundle, err := i18ncatalog.LoadEmbedded()
	if err != nil {
		config.Exitf("load locale catalogs: %v", err)
	}
	if !bundle.HasLocale(baseLocale) {
		config.Exitf("base locale %q is missing from catalogs", baseLocale)
	}

	rep := buildReport(bundle, baseLocale)
	if err := writeJSON(jsonOut, rep); err != nil {
		config.Exitf("write json report: %v", err)
	}
	if err := writeMarkdown(markdownOut, rep); err != nil {
		config.Exitf("write markdown report: %v", err)
	}
	fmt.Printf("wrote %s and %s\n", markdownOut, jsonOut)
}

func buildReport(bundle *i18ncatalog.Bundle, baseLocale string) report {
	baseMessages := bundle.LocaleMessages(baseLocale)

	locales := bundle.Locales()
	statuses := make([]localeStatus, 0, len(locales))
	for _, locale := range locales {
		localeMessages := bundle.LocaleMessages(locale)
		missingKeyList := diffKeys(baseMessages, localeMessages)
		extraKeyList := diffKeys(localeMessages, baseMessages)
		translated := len(baseMessages) - len(missingKeyList)

		namespaces := unionNamespaces(bundle, baseLocale, locale)
		namespaceStatuses := make([]namespaceStatus, 0, len(namespaces))
		for _, namespace := range namespaces {
			baseNS := bundle.NamespaceMessages(baseLocale, namespace)
			localeNS := bundle.NamespaceMessages(locale, namespace)
			nsMissing := diffKeys(baseNS, localeNS)
			nsTranslated := len(baseNS) - len(nsMissing)
			namespaceStatuses = append(namespaceStatuses, namespaceStatus{
				Namespace:  namespace,
				BaseKeys:   len(baseNS),
				Translated: nsTranslated,
				Missing:    len(nsMissing),
				Extra:      len(diffKeys(localeNS, baseNS)),
				Completion: percent(nsTranslated, len(baseNS)),
			})
		}

		statuses = append(statuses, localeStatus{
			Locale:      locale,
			BaseKeys:    len(baseMessages),
			Translated:  translated,
			Missing:     len(missingKeyList),
			Extra:       len(extraKeyList),
			Completion:  percent(translated, len(baseMessages)),
			Namespaces:  namespaceStatuses,
			MissingKeys: missingKeyList,
			ExtraKeys:   extraKeyList,
		})
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Locale < statuses[j].Locale
	})

	return report{BaseLocale: baseLocale, Locales: statuses}
}

func unionNamespaces(bundle *i18ncatalog.Bundle, baseLocale, locale string) []string {
	set := map[string]struct{}{}
	for _, namespace := range bundle.Namespaces(baseLocale) {
		set[namespace] = struct{}{}
	}
	for _, namespace := range bundle.Namespaces(locale) {
		set[namespace] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for namespace := range set {
		out = append(out, namespace)
	}
	sort.Strings(out)
	return out
}

func writeJSON(path string, rep report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeMarkdown(path string, rep report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}

	var b strings.Builder
	b.WriteString("# Locale Catalog Status\n\n")
	b.WriteString("Generated by `go run ./internal/tools/i18nstatus`.\n\n")
	b.WriteString("Base locale: `")
	b.WriteString(rep.BaseLocale)
	b.WriteString("`.\n\n")

	b.WriteString("| Locale | Base Keys | Translated | Missing | Extra | Completion |\n")
	b.WriteString("| --- | ---: | ---: | ---: | ---: | ---: |\n")
	for _, locale := range rep.Locales {
		b.WriteString(fmt.Sprintf("| `%s` | %d | %d | %d | %d | %.1f%% |\n", locale.Locale, locale.BaseKeys, locale.Translated, locale.Missing, locale.Extra, locale.Completion))
	}

	for _, locale := range rep.Locales {
		b.WriteString("\n## Locale: `")
		b.WriteString(locale.Locale)
		b.WriteString("`\n\n")

		b.WriteString("| Namespace | Base Keys | Translated | Missing | Extra | Completion |\n")
		b.WriteString("| --- | ---: | ---: | ---: | ---: | ---: |\n")
		for _, ns := range locale.Namespaces {
			b.WriteString(fmt.Sprintf("| `%s` | %d | %d | %d | %d | %.1f%% |\n", ns.Namespace, ns.BaseKeys, ns.Translated, ns.Missing, ns.Extra, ns.Completion))
		}

		if len(locale.MissingKeys) > 0 {
			b.WriteString("\n### Missing Keys\n\n")
			for _, key := range locale.MissingKeys {
				b.WriteString("- `")
				b.WriteString(key)
				b.WriteString("`\n")
			}
		}
		if len(locale.ExtraKeys) > 0 {
			b.WriteString("\n### Extra Keys\n\n")
			for _, key := range locale.ExtraKeys {
				b.WriteString("- `")
				b.WriteString(key)
				b.WriteString("`\n")
			}
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// diffKeys returns the keys of a that are absent from b, sorted.
func diffKeys(a map[string]string, b map[string]string) []string {
	out := make([]string, 0)
	for key := range a {
		if _, ok := b[key]; !ok {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

func percent(numerator int, denominator int) float64 {
	if denominator <= 0 {
		return 100
	}
	value := float64(numerator) * 100 / float64(denominator)
	return math.Round(value*10) / 10
}
