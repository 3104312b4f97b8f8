// Package receipt renders the settlement statement of a finished job.
package receipt

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"

	"gigflow/apperr"
	"gigflow/ledger"
	"gigflow/models"
	"gigflow/orchestrator"
)

var ErrNotSettled = apperr.New(apperr.CodePrecondition, "receipts are available once the job is finished")

type Line struct {
	UserID    string
	Amount    float64
	PayoutRef string
	Paid      bool
	Score     int
}

type Statement struct {
	Job         models.Job
	Lines       []Line
	Total       float64
	Outstanding float64
	URL         string
}

// Payouts looks up ledger transactions by reference.
type Payouts interface {
	Lookup(ctx context.Context, ref string) (models.Transaction, bool, error)
}

// FromDetail builds the statement from a viewer's job detail. Only the owner
// and roster members get one. A line counts as paid only when the ledger
// holds a successful payout under its reference.
func FromDetail(ctx context.Context, d orchestrator.JobDetail, payouts Payouts, publicURL string) (Statement, error) {
	if !d.IsOwner && !d.IsMember {
		return Statement{}, apperr.New(apperr.CodeForbidden, "only the owner and the roster can see the receipt")
	}
	if d.Job.Status != models.JobFinished {
		return Statement{}, ErrNotSettled
	}
	scores := make(map[string]int, len(d.Ratings))
	for _, r := range d.Ratings {
		scores[r.UserID] = r.Score
	}
	st := Statement{Job: d.Job, URL: fmt.Sprintf("%s/jobs/%s", publicURL, d.Job.JobID)}
	for _, u := range d.Job.Accepted {
		ref := ledger.PayoutRef(d.Job.JobID, u)
		txn, found, err := payouts.Lookup(ctx, ref)
		if err != nil {
			return Statement{}, err
		}
		l := Line{UserID: u, Amount: d.Job.Salary, PayoutRef: ref, Score: scores[u]}
		l.Paid = found && txn.Status == models.TxnSuccess
		if l.Paid {
			st.Total += l.Amount
		} else {
			st.Outstanding += l.Amount
		}
		st.Lines = append(st.Lines, l)
	}
	return st, nil
}

func money(v float64) string {
	return fmt.Sprintf("%.2f %s", v, ledger.Currency)
}

// Render writes st as a one page PDF with a QR code linking back to the job.
func Render(w io.Writer, st Statement) error {
	qrPNG, err := qrcode.Encode(st.URL, qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("qr code: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Settlement "+st.Job.JobID, true)
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Settlement statement")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 11)
	for _, row := range [][2]string{
		{"Job", st.Job.Name},
		{"Job ID", st.Job.JobID},
		{"Owner", st.Job.OwnerID},
		{"Salary", money(st.Job.Salary)},
		{"Escrow txn", st.Job.EscrowTxn},
	} {
		pdf.CellFormat(35, 7, row[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, row[1], "", 1, "L", false, 0, "")
	}
	if st.Job.FinishedAt != nil {
		pdf.CellFormat(35, 7, "Finished", "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, st.Job.FinishedAt.Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 11)
	pdf.SetFillColor(230, 230, 230)
	widths := []float64{40, 30, 20, 90}
	for i, h := range []string{"Freelancer", "Amount", "Rating", "Payout reference"} {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, l := range st.Lines {
		score := "-"
		if l.Score > 0 {
			score = fmt.Sprintf("%d/5", l.Score)
		}
		pdf.CellFormat(widths[0], 7, l.UserID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, money(l.Amount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 7, score, "1", 0, "C", false, 0, "")
		ref := l.PayoutRef
		if !l.Paid {
			ref = "unpaid"
		}
		pdf.CellFormat(widths[3], 7, ref, "1", 1, "L", false, 0, "")
	}
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(widths[0], 8, "Paid", "1", 0, "L", false, 0, "")
	pdf.CellFormat(widths[1], 8, money(st.Total), "1", 1, "R", false, 0, "")
	if st.Outstanding > 0 {
		pdf.CellFormat(widths[0], 8, "Outstanding", "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 8, money(st.Outstanding), "1", 1, "R", false, 0, "")
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 160, 15, 35, 35, false, opts, 0, "")

	return pdf.Output(w)
}
