package output

import (
	"fmt"
	"os"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/workflowrunner/internal/results"
	urlutil "github.com/use-agent/workflowrunner/internal/utils/url"
)

// SaveMarkdown converts a crawl/search capture's page rows (each carrying
// "url" and "html" fields) to Markdown sections, one per visited page, and
// writes the concatenated result to filepath.
func SaveMarkdown(rows []results.Record, filepath string) error {
	var sb strings.Builder

	for i, row := range rows {
		pageURL, _ := row["url"].(string)
		htmlContent, _ := row["html"].(string)
		title, _ := row["title"].(string)

		if i > 0 {
			sb.WriteString("\n---\n\n")
		}
		if title != "" {
			sb.WriteString(fmt.Sprintf("# %s\n\n", title))
		}
		if pageURL != "" {
			sb.WriteString(fmt.Sprintf("Source: %s\n\n", pageURL))
		}

		converted, err := pageMarkdown(pageURL, htmlContent)
		if err != nil {
			continue
		}
		sb.WriteString(converted)
		sb.WriteString("\n")
	}

	return os.WriteFile(filepath, []byte(sb.String()), 0644)
}

func pageMarkdown(pageURL, htmlContent string) (string, error) {
	if htmlContent == "" {
		return "", nil
	}

	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	converter.AddRules(md.Rule{
		Filter: []string{"a"},
		Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
			href, exists := selec.Attr("href")
			if !exists {
				return nil
			}

			resolved := href
			if pageURL != "" {
				resolved = urlutil.ResolveURL(pageURL, href)
			}
			title, hasTitle := selec.Attr("title")
			var titlePart string
			if hasTitle {
				titlePart = fmt.Sprintf(" %q", title)
			}
			str := fmt.Sprintf("[%s](%s)%s", selec.Text(), resolved, titlePart)
			return &str
		},
	})

	cleaned, err := CleanHTML(htmlContent)
	if err != nil {
		return "", err
	}

	return converter.ConvertString(cleaned)
}
