package report

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/core/student"
)

// AllClasses selects every class of a grade.
const AllClasses = "ALL"

var NowFunc = func() time.Time { return time.Now().UTC() } // mockable

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

type (
	// DueFilter narrows a due report. Empty Grade means every grade; empty Class or AllClasses every class.
	DueFilter struct {
		Grade string `json:"grade" query:"grade" validate:"omitempty,grade"`
		Class string `json:"class" query:"class"`
	}

	// DueRow is what one student owes over all their open assignments.
	DueRow struct {
		StudentID       string          `json:"id"`
		AdmissionNumber string          `json:"admission_number"`
		Name            string          `json:"name"`
		Grade           string          `json:"current_grade"`
		Class           string          `json:"current_class"`
		ContactNumber   string          `json:"contact_number"`
		DueAmount       decimal.Decimal `json:"due_amount"`
	}

	ClassGroup struct {
		Class    string          `json:"class"`
		Students []DueRow        `json:"students"`
		Total    decimal.Decimal `json:"total"`
	}

	DueReport struct {
		Grade       string          `json:"grade"`
		Class       string          `json:"class"`
		GeneratedAt time.Time       `json:"generated_at"`
		Students    []DueRow        `json:"students_with_due"`
		Total       decimal.Decimal `json:"total"`
	}

	GenerateRequest struct {
		Grade  string `json:"grade" validate:"required,grade"`
		Class  string `json:"class"`
		Format Format `json:"format" validate:"required,oneof=pdf xlsx"`
	}

	EmailRequest struct {
		GenerateRequest
		To []string `json:"to" validate:"required,min=1,dive,email"`
	}

	// Document is a rendered report.
	Document struct {
		Content     []byte
		ContentType string
		Filename    string
	}

	Options struct {
		Validate   *validator.Validate
		MailSvc    core.EmailService
		SchoolName string
		PageSize   string
		Currency   string
	}

	// Service builds due reports from the ledger; it never computes dues itself.
	Service struct {
		ledgerSvc *ledger.Service
		opts      Options
	}
)

func NewService(ledgerSvc *ledger.Service, opts Options) *Service {
	if opts.PageSize == "" {
		opts.PageSize = "A4"
	}
	return &Service{ledgerSvc: ledgerSvc, opts: opts}
}

func (f *DueFilter) Clean() {
	f.Grade = core.CleanString(f.Grade)
	f.Class = core.CleanString(f.Class)
	if strings.EqualFold(f.Class, AllClasses) {
		f.Class = ""
	}
}

// Due lists the active students who owe something, with the sum of what their open assignments still owe.
// Soft-deleted assignments are left out.
func (svc *Service) Due(ctx context.Context, filter DueFilter) (DueReport, error) {
	filter.Clean()
	if err := svc.opts.Validate.Struct(filter); err != nil {
		return DueReport{}, err
	}

	active := true
	balances, err := svc.ledgerSvc.Balances(ctx, ledger.AssignmentFilter{
		Grade:          filter.Grade,
		Class:          filter.Class,
		Statuses:       ledger.OpenStatuses,
		ActiveStudents: &active,
	})
	if err != nil {
		return DueReport{}, errors.Wrap(err, "computing balances")
	}

	rep := DueReport{
		Grade:       filter.Grade,
		Class:       filter.Class,
		GeneratedAt: NowFunc(),
		Students:    Rows(balances),
		Total:       decimal.Zero,
	}
	if rep.Class == "" {
		rep.Class = AllClasses
	}
	for _, row := range rep.Students {
		rep.Total = rep.Total.Add(row.DueAmount)
	}
	return rep, nil
}

// Rows sums balances per student, keeping the students who owe something, sorted by grade, class and name.
func Rows(balances []ledger.Balance) []DueRow {
	byStudent := make(map[string]*DueRow)
	for _, b := range balances {
		if !b.Due.IsPositive() {
			continue
		}
		std := b.Assignment.Student
		row, ok := byStudent[b.Assignment.StudentID]
		if !ok {
			row = &DueRow{
				StudentID:       b.Assignment.StudentID,
				AdmissionNumber: std.AdmissionNumber,
				Name:            std.Name,
				Grade:           std.Grade,
				Class:           std.Class,
				ContactNumber:   std.ContactNumber,
				DueAmount:       decimal.Zero,
			}
			byStudent[b.Assignment.StudentID] = row
		}
		row.DueAmount = row.DueAmount.Add(b.Due)
	}

	rows := make([]DueRow, 0, len(byStudent))
	for _, row := range byStudent {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Grade != rows[j].Grade {
			return gradeLess(rows[i].Grade, rows[j].Grade)
		}
		if rows[i].Class != rows[j].Class {
			return rows[i].Class < rows[j].Class
		}
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].AdmissionNumber < rows[j].AdmissionNumber
	})
	return rows
}

// GroupByClass groups rows by class, in the order classes first appear.
func GroupByClass(rows []DueRow) []ClassGroup {
	var groups []ClassGroup
	index := make(map[string]int)
	for _, row := range rows {
		i, ok := index[row.Class]
		if !ok {
			i = len(groups)
			index[row.Class] = i
			groups = append(groups, ClassGroup{Class: row.Class, Total: decimal.Zero})
		}
		groups[i].Students = append(groups[i].Students, row)
		groups[i].Total = groups[i].Total.Add(row.DueAmount)
	}
	return groups
}

// Generate renders the due report of a grade in the requested format.
func (svc *Service) Generate(ctx context.Context, req GenerateRequest) (Document, error) {
	req.Grade = core.CleanString(req.Grade)
	req.Format = Format(core.CleanString(string(req.Format), true /* lower */))
	if err := svc.opts.Validate.Struct(req); err != nil {
		return Document{}, err
	}

	rep, err := svc.Due(ctx, DueFilter{Grade: req.Grade, Class: req.Class})
	if err != nil {
		return Document{}, err
	}

	var buf bytes.Buffer
	doc := Document{Filename: fmt.Sprintf("duereport-%s-%s.%s", slug(rep.Grade), slug(rep.Class), req.Format)}
	switch req.Format {
	case FormatPDF:
		doc.ContentType = "application/pdf"
		err = RenderPDF(&buf, rep, svc.renderOptions())
	case FormatXLSX:
		doc.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = RenderXLSX(&buf, rep, svc.renderOptions())
	}
	if err != nil {
		return Document{}, errors.Wrapf(err, "rendering %s", req.Format)
	}
	doc.Content = buf.Bytes()
	return doc, nil
}

// Email sends the rendered due report as an attachment.
func (svc *Service) Email(ctx context.Context, req EmailRequest) error {
	req.Grade = core.CleanString(req.Grade)
	req.Format = Format(core.CleanString(string(req.Format), true /* lower */))
	for i := range req.To {
		req.To[i] = core.CleanString(req.To[i], true /* lower */)
	}
	if err := svc.opts.Validate.Struct(req); err != nil {
		return err
	}

	doc, err := svc.Generate(ctx, req.GenerateRequest)
	if err != nil {
		return err
	}

	to := make([]mail.Address, 0, len(req.To))
	for _, addr := range req.To {
		to = append(to, mail.Address{Address: addr})
	}
	class := req.Class
	if class == "" {
		class = AllClasses
	}
	msg := &core.EmailMessage{
		To:          to,
		Subject:     fmt.Sprintf("Due report: grade %s, class %s", req.Grade, class),
		TextContent: "Please find the due report attached.\n",
	}
	if err = msg.Attach(bytes.NewReader(doc.Content), doc.Filename, doc.ContentType); err != nil {
		return errors.Wrap(err, "attaching report")
	}
	svc.opts.MailSvc.SendMessages(msg)
	return nil
}

func (svc *Service) renderOptions() RenderOptions {
	return RenderOptions{SchoolName: svc.opts.SchoolName, PageSize: svc.opts.PageSize, Currency: svc.opts.Currency}
}

func gradeLess(a, b string) bool {
	return student.GradeRank(a) < student.GradeRank(b)
}

func slug(s string) string {
	return strings.NewReplacer("/", "", " ", "_").Replace(strings.ToLower(s))
}
