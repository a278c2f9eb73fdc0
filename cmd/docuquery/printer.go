package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/devJinesh/DocuQuery/internal/model"
)

type printer struct {
	w       io.Writer
	user    *color.Color
	reply   *color.Color
	failure *color.Color
	muted   *color.Color
	ok      *color.Color
}

func newPrinter(w io.Writer, enabled bool) *printer {
	p := &printer{
		w:       w,
		user:    color.New(color.FgCyan, color.Bold),
		reply:   color.New(color.FgWhite),
		failure: color.New(color.FgRed),
		muted:   color.New(color.FgHiBlack),
		ok:      color.New(color.FgGreen),
	}
	for _, c := range []*color.Color{p.user, p.reply, p.failure, p.muted, p.ok} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *printer) Printf(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) Message(m model.Message) {
	switch {
	case m.Sender == model.SenderUser:
		p.user.Fprintf(p.w, "you> %s\n", m.Text)
	case m.IsError:
		p.failure.Fprintln(p.w, m.Text)
	default:
		p.reply.Fprintln(p.w, m.Text)
		if len(m.Citations) > 0 {
			p.muted.Fprintf(p.w, "sources: %s\n", pages(m.Citations))
		}
	}
}

func (p *printer) Task(t model.UploadTask) {
	switch t.Status {
	case model.UploadSuccess:
		p.ok.Fprintf(p.w, "%-9s %s (id %d)\n", t.Status, t.FileName, *t.ResultDocumentID)
	case model.UploadError:
		p.failure.Fprintf(p.w, "%-9s %s: %s\n", t.Status, t.FileName, t.ErrorDetail)
	default:
		p.muted.Fprintf(p.w, "%-9s %s\n", t.Status, t.FileName)
	}
}

func (p *printer) Document(d model.Document) {
	state := p.ok.Sprint("ready")
	if !d.Processed {
		state = p.muted.Sprint("processing")
	}
	date := ""
	if !d.UploadDate.IsZero() {
		date = d.UploadDate.Format("2006-01-02 15:04")
	}
	fmt.Fprintf(p.w, "%5d  %-40s %5d pages %9s  %-16s %s\n", d.ID, d.Name, d.PageCount, size(d.FileSize), date, state)
}

func (p *printer) Image(img model.ExtractedImage) {
	dims := p.muted.Sprint("?x?")
	if img.Width != nil && img.Height != nil {
		dims = fmt.Sprintf("%dx%d", *img.Width, *img.Height)
	}
	fmt.Fprintf(p.w, "%5d  page %-4d %-10s %s\n", img.ID, img.PageNumber, dims, img.ImagePath)
}

func (p *printer) Table(tbl model.ExtractedTable) {
	var formats []string
	if tbl.CSVPath != nil {
		formats = append(formats, "csv")
	}
	if tbl.ExcelPath != nil {
		formats = append(formats, "excel")
	}
	avail := p.muted.Sprint("no exports")
	if len(formats) > 0 {
		avail = strings.Join(formats, ", ")
	}
	fmt.Fprintf(p.w, "%5d  page %-4d %s\n", tbl.ID, tbl.PageNumber, avail)
}

func (p *printer) Error(format string, args ...interface{}) {
	p.failure.Fprintf(p.w, format+"\n", args...)
}

func pages(citations []int) string {
	out := make([]string, len(citations))
	for i, c := range citations {
		out[i] = fmt.Sprintf("p.%d", c)
	}
	return strings.Join(out, ", ")
}

func size(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// mask keeps the last four characters of a secret.
func mask(s string) string {
	if s == "" {
		return "(unset)"
	}
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
