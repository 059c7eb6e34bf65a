package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/ledger"
	"github.com/trezcool/feeledger/core/report"
	"github.com/trezcool/feeledger/core/student"
	"github.com/trezcool/feeledger/core/user"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `?ordering=field,-other` where a leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// query reads typed query params and collects their parsing errors.
type query struct {
	ctx  echo.Context
	errs []core.FieldError
}

func newQuery(ctx echo.Context) *query {
	return &query{ctx: ctx}
}

func (q *query) str(name string) string {
	return q.ctx.QueryParam(name)
}

func (q *query) strs(name string) []string {
	var vals []string
	for _, v := range q.ctx.QueryParams()[name] {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				vals = append(vals, s)
			}
		}
	}
	return vals
}

func (q *query) boolPtr(name string) *bool {
	val := q.str(name)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		q.errs = append(q.errs, core.FieldError{Field: name, Error: "must be true or false"})
		return nil
	}
	return &b
}

func (q *query) integer(name string) int {
	val := q.str(name)
	if val == "" {
		return 0
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		q.errs = append(q.errs, core.FieldError{Field: name, Error: "must be an integer"})
	}
	return n
}

// date accepts YYYY-MM-DD or RFC3339.
func (q *query) date(name string) time.Time {
	val := q.str(name)
	if val == "" {
		return time.Time{}
	}
	d, err := core.ParseDate(val)
	if err != nil {
		q.errs = append(q.errs, core.FieldError{Field: name, Error: "must be a date (YYYY-MM-DD)"})
	}
	return d.Time
}

func (q *query) err() error {
	if len(q.errs) == 0 {
		return nil
	}
	return core.NewValidationError(nil, q.errs...)
}

func bindUserFilter(ctx echo.Context) (user.QueryFilter, error) {
	q := newQuery(ctx)
	filter := user.QueryFilter{
		Search:   q.str("search"),
		Kind:     user.AccessKind(q.str("access")),
		IsActive: q.boolPtr("is_active"),
	}
	return filter, q.err()
}

func bindStudentFilter(ctx echo.Context) (student.QueryFilter, error) {
	q := newQuery(ctx)
	filter := student.QueryFilter{
		Search:   q.str("search"),
		Grade:    q.str("grade"),
		Class:    q.str("class"),
		IsActive: q.boolPtr("is_active"),
		Limit:    q.integer("limit"),
	}
	return filter, q.err()
}

func bindAssignmentFilter(ctx echo.Context) (ledger.AssignmentFilter, error) {
	q := newQuery(ctx)
	filter := ledger.AssignmentFilter{
		Search:         q.str("search"),
		StudentID:      q.str("student_id"),
		AcademicYear:   q.str("academic_year"),
		Grade:          q.str("grade"),
		Class:          q.str("class"),
		ActiveStudents: q.boolPtr("active"),
	}
	for _, s := range q.strs("status") {
		filter.Statuses = append(filter.Statuses, ledger.Status(s))
	}
	if inc := q.boolPtr("include_deleted"); inc != nil {
		filter.IncludeDeleted = *inc
	}
	return filter, q.err()
}

func bindPaymentFilter(ctx echo.Context) (ledger.PaymentFilter, error) {
	q := newQuery(ctx)
	filter := ledger.PaymentFilter{
		Search:          q.str("search"),
		StudentID:       q.str("student_id"),
		FeeAssignmentID: q.str("fee_assignment_id"),
		ReceiptNumber:   q.str("receipt_number"),
		Method:          ledger.Method(q.str("payment_method")),
		Cancelled:       q.boolPtr("cancelled"),
		DateFrom:        q.date("date_from"),
		DateTo:          q.date("date_to"),
	}
	return filter, q.err()
}

func bindDueFilter(ctx echo.Context) report.DueFilter {
	q := newQuery(ctx)
	return report.DueFilter{Grade: q.str("grade"), Class: q.str("class")}
}
