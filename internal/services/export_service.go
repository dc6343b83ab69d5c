package services

import (
	"fmt"
	"io"
	"strings"

	"github.com/alimgiray/bountyscope/internal/models"
	"github.com/xuri/excelize/v2"
)

const (
	exportSheet   = "Issues"
	exportMaxRows = 5000
)

var exportHeader = []interface{}{
	"Repository", "Number", "Title", "Status", "Bounty", "Bounty (cents)", "Source",
	"Language", "Labels", "Author", "Comments", "Views", "Created", "Updated", "URL",
}

// ExportService renders stored issues as spreadsheets
type ExportService struct {
	issueService *IssueService
}

func NewExportService(issueService *IssueService) *ExportService {
	return &ExportService{issueService: issueService}
}

// ExportIssues writes every issue matching filter, sorted as requested, to w as an .xlsx workbook
func (s *ExportService) ExportIssues(w io.Writer, filter models.IssueFilter, opts models.IssueListOptions) (int, error) {
	var issues []*models.Issue
	opts.Page = 1
	opts.PerPage = models.MaxPerPage
	for len(issues) < exportMaxRows {
		page, err := s.issueService.Search(filter, opts)
		if err != nil {
			return 0, err
		}
		for _, issue := range page.Items {
			full, err := s.issueService.GetIssue(issue.ID)
			if err == nil {
				issue = full
			}
			issues = append(issues, issue)
		}
		if !page.Pagination.HasNext {
			break
		}
		opts.Page++
	}

	if err := WriteIssuesXLSX(w, issues); err != nil {
		return 0, err
	}
	return len(issues), nil
}

// WriteIssuesXLSX writes issues to w as a single-sheet workbook with a header row
func WriteIssuesXLSX(w io.Writer, issues []*models.Issue) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}

	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(exportHeader))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(exportSheet, "A1", lastCol+"1", bold); err != nil {
		return err
	}

	for i, issue := range issues {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			issue.RepositoryFullName,
			issue.GithubNumber,
			issue.Title,
			string(issue.Status),
			issue.BountyFormatted(),
			issue.BountyAmount,
			derefString(issue.BountySource),
			derefString(issue.PrimaryLanguage),
			labelNames(issue.Labels),
			issue.AuthorUsername,
			issue.CommentsCount,
			issue.ViewCount,
			issue.GithubCreatedAt.Format("2006-01-02"),
			issue.GithubUpdatedAt.Format("2006-01-02"),
			issue.HTMLURL,
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row for issue %d: %w", issue.GithubID, err)
		}
	}

	if err := f.SetColWidth(exportSheet, "C", "C", 60); err != nil {
		return err
	}

	return f.Write(w)
}

func labelNames(labels []*models.Label) string {
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		names = append(names, label.Name)
	}
	return strings.Join(names, ", ")
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
