package jenkins

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ConsoleText extracts the console log from a rendered /consoleText page.
// Browsers wrap plain-text responses in <pre>; if no such element exists the
// whole document text is returned instead.
func ConsoleText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse console page: %w", err)
	}

	if pre := doc.Find("pre").First(); pre.Length() > 0 {
		return pre.Text(), nil
	}
	return doc.Text(), nil
}

// JobSummary is one row of the dashboard's job table.
type JobSummary struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// DashboardJobs lists the jobs shown on the Jenkins dashboard. Used to
// annotate a capture run with what the instance was building at the time.
func DashboardJobs(html string) ([]JobSummary, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse dashboard: %w", err)
	}

	var jobs []JobSummary
	doc.Find("table#projectstatus tr td a.model-link").Each(func(_ int, a *goquery.Selection) {
		name := strings.TrimSpace(a.Text())
		if name == "" {
			return
		}
		href, _ := a.Attr("href")
		// The status-ball link and the job-name link share the same href;
		// keep one entry per job.
		for _, j := range jobs {
			if j.URL == href || j.Name == name {
				return
			}
		}
		jobs = append(jobs, JobSummary{Name: name, URL: href})
	})
	return jobs, nil
}
