package notifier

import (
	"fmt"
	"strings"

	"sitemap-watch/pkg/detector"
)

func (n *WebhookNotifier) header() string {
	return fmt.Sprintf("🔍 Sitemap monitor (%s)", n.now().In(n.location).Format("2006-01-02"))
}

// FormatDigest summarizes every diff that added URLs. When none did, a short
// "no new pages" message is returned instead.
func (n *WebhookNotifier) FormatDigest(diffs []*detector.Diff) string {
	var b strings.Builder
	b.WriteString(n.header())

	changed := make([]*detector.Diff, 0, len(diffs))
	for _, d := range diffs {
		if d.HasChanges() {
			changed = append(changed, d)
		}
	}
	if len(changed) == 0 {
		b.WriteString("\n📊 No new pages found")
		return b.String()
	}

	b.WriteString("\n📊 New pages and keywords found:\n\n")

	totalURLs := 0
	allKeywords := make(map[string]struct{})
	for _, d := range changed {
		totalURLs += len(d.AddedURLs)
		for _, kw := range d.Keywords {
			allKeywords[kw] = struct{}{}
		}

		fmt.Fprintf(&b, "🌐 %s\n", d.Site)
		fmt.Fprintf(&b, "📈 %d new page%s\n", len(d.AddedURLs), plural(len(d.AddedURLs)))

		if len(d.Keywords) > 0 {
			shown := d.Keywords
			if len(shown) > n.config.MaxKeywords {
				shown = shown[:n.config.MaxKeywords]
			}
			fmt.Fprintf(&b, "🔑 Keywords: %s", strings.Join(shown, ", "))
			if extra := len(d.Keywords) - len(shown); extra > 0 {
				fmt.Fprintf(&b, " (+%d more)", extra)
			}
			b.WriteString("\n")
		}

		b.WriteString("📝 Examples:\n")
		examples := d.AddedURLs
		if len(examples) > exampleURLCount {
			examples = examples[:exampleURLCount]
		}
		for _, u := range examples {
			fmt.Fprintf(&b, "  • %s\n", u)
		}
		if extra := len(d.AddedURLs) - len(examples); extra > 0 {
			fmt.Fprintf(&b, "  • ... +%d more\n", extra)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "📊 Total: %d new page%s, %d keyword%s",
		totalURLs, plural(totalURLs), len(allKeywords), plural(len(allKeywords)))
	return b.String()
}

// FormatInitial announces that count sites were snapshotted for the first time.
func (n *WebhookNotifier) FormatInitial(count int) string {
	return fmt.Sprintf("%s\n🆕 Initial snapshot saved for %d site%s\n📌 Changes will be reported from the next run",
		n.header(), count, plural(count))
}

// FormatError reports a failed cycle.
func (n *WebhookNotifier) FormatError(err error) string {
	text := "unknown error"
	if err != nil {
		text = err.Error()
	}
	return fmt.Sprintf("❌ Sitemap monitor error\n📅 %s\n❗ %s",
		n.now().In(n.location).Format("2006-01-02 15:04:05 MST"), text)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
