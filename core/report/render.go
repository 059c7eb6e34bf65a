package report

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/feeledger/core"
)

type RenderOptions struct {
	SchoolName string
	PageSize   string
	Currency   string
}

func (opts RenderOptions) money(d decimal.Decimal) string {
	amount := d.StringFixed(core.MoneyPlaces)
	if opts.Currency == "" {
		return amount
	}
	return opts.Currency + " " + amount
}

func title(rep DueReport) string {
	return fmt.Sprintf("Due Report - Grade %s - Class %s", rep.Grade, rep.Class)
}

var pdfColumns = []struct {
	header string
	width  float64 // mm
	align  string
}{
	{"#", 10, "R"},
	{"Admission No", 32, "L"},
	{"Name", 78, "L"},
	{"Class", 25, "L"},
	{"Due Amount", 35, "R"},
}

const (
	pdfRowHeight = 7
	pdfMarginMM  = 10
)

// RenderPDF writes the report as a paginated PDF with one table per class and subtotals.
func RenderPDF(w io.Writer, rep DueReport, opts RenderOptions) error {
	pdf := fpdf.New("P", "mm", opts.PageSize, "")
	pdf.SetMargins(pdfMarginMM, pdfMarginMM, pdfMarginMM)
	pdf.SetAutoPageBreak(false, pdfMarginMM)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("") // cp1252

	pdf.SetHeaderFunc(func() {
		if opts.SchoolName != "" {
			pdf.SetFont("Helvetica", "B", 14)
			pdf.CellFormat(0, 8, tr(opts.SchoolName), "", 1, "C", false, 0, "")
		}
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, tr(title(rep)), "", 1, "C", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 5, "Generated on "+rep.GeneratedAt.Format("2006-01-02 15:04"), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pdfMarginMM - 5)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	_, pageHeight := pdf.GetPageSize()
	bottom := pageHeight - pdfMarginMM - 10 // leave room for the footer

	tableHeader := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for _, col := range pdfColumns {
			pdf.CellFormat(col.width, pdfRowHeight, col.header, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 10)
	}
	// ensure there is room for n rows, starting a new page (and table header) otherwise
	ensureRoom := func(n int, withHeader bool) {
		if pdf.GetY()+float64(n)*pdfRowHeight > bottom {
			pdf.AddPage()
			if withHeader {
				tableHeader()
			}
		}
	}

	pdf.AddPage()
	groups := GroupByClass(rep.Students)
	if len(groups) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 10, "No students with dues.", "", 1, "C", false, 0, "")
	}
	for _, grp := range groups {
		ensureRoom(3, false)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 8, tr("Class "+grp.Class), "", 1, "L", false, 0, "")
		tableHeader()
		for i, row := range grp.Students {
			ensureRoom(1, true)
			cells := []string{
				fmt.Sprintf("%d", i+1),
				tr(row.AdmissionNumber),
				tr(row.Name),
				tr(row.Class),
				tr(opts.money(row.DueAmount)),
			}
			for c, col := range pdfColumns {
				pdf.CellFormat(col.width, pdfRowHeight, cells[c], "1", 0, col.align, false, 0, "")
			}
			pdf.Ln(-1)
		}
		ensureRoom(1, true)
		pdf.SetFont("Helvetica", "B", 10)
		labelWidth := 0.0
		for _, col := range pdfColumns[:len(pdfColumns)-1] {
			labelWidth += col.width
		}
		pdf.CellFormat(labelWidth, pdfRowHeight, fmt.Sprintf("Total (%d students)", len(grp.Students)), "1", 0, "R", false, 0, "")
		pdf.CellFormat(pdfColumns[len(pdfColumns)-1].width, pdfRowHeight, tr(opts.money(grp.Total)), "1", 1, "R", false, 0, "")
		pdf.Ln(4)
	}

	if len(groups) > 1 {
		ensureRoom(1, false)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 8, tr("Grand total: "+opts.money(rep.Total)), "", 1, "R", false, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return errors.Wrap(err, "building pdf")
	}
	return pdf.Output(w)
}

var xlsxHeaders = []string{"Admission No", "Name", "Grade", "Class", "Contact Number", "Due Amount"}

// RenderXLSX writes the report as a spreadsheet: one row per student, then the total.
func RenderXLSX(w io.Writer, rep DueReport, opts RenderOptions) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheetName := "Due Report"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return errors.Wrap(err, "creating sheet")
	}
	f.SetActiveSheet(index)
	if err = f.DeleteSheet("Sheet1"); err != nil {
		return errors.Wrap(err, "deleting default sheet")
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating style")
	}

	if err = f.SetCellValue(sheetName, "A1", title(rep)); err != nil {
		return err
	}
	if err = f.SetCellStyle(sheetName, "A1", "A1", bold); err != nil {
		return err
	}
	for i, header := range xlsxHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		if err = f.SetCellValue(sheetName, cell, header); err != nil {
			return err
		}
	}
	if err = f.SetCellStyle(sheetName, "A3", "F3", bold); err != nil {
		return err
	}

	row := 4
	for _, r := range rep.Students {
		due, _ := r.DueAmount.Round(core.MoneyPlaces).Float64()
		values := []interface{}{r.AdmissionNumber, r.Name, r.Grade, r.Class, r.ContactNumber, due}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			if err = f.SetCellValue(sheetName, cell, v); err != nil {
				return err
			}
		}
		row++
	}

	total, _ := rep.Total.Round(core.MoneyPlaces).Float64()
	if err = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), "Total"); err != nil {
		return err
	}
	if err = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), total); err != nil {
		return err
	}
	if err = f.SetCellStyle(sheetName, fmt.Sprintf("E%d", row), fmt.Sprintf("F%d", row), bold); err != nil {
		return err
	}
	if err = f.SetColWidth(sheetName, "A", "F", 18); err != nil {
		return err
	}
	if err = f.SetColWidth(sheetName, "B", "B", 32); err != nil {
		return err
	}

	return f.Write(w)
}
