// Command devis edits a quote locally and exports it as PDF.
//
//	devis new -client "ACME" -company "Mon entreprise"
//	devis add -desc "Développement" -qty 3 -price 450 -tva 20
//	devis export -o ./out
//	devis history
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/diewo77/devispro/internal/editor"
	"github.com/diewo77/devispro/internal/localstore"
	"github.com/diewo77/devispro/internal/logging"
	"github.com/diewo77/devispro/internal/pdf"
	"github.com/diewo77/devispro/internal/quote"
)

var errUsage = errors.New("usage: devis [-dir path] <new|add|update|rm|show|export|history> [flags]")

func main() {
	logger := logging.New(os.Stderr, "development", os.Getenv("LOG_LEVEL"))
	if err := run(os.Args[1:], os.Stdout, nil, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func defaultDir() string {
	if d := os.Getenv("DEVIS_DIR"); d != "" {
		return d
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".devis")
	}
	return ".devis"
}

// run executes one command. kv overrides the file store when non nil.
func run(args []string, out io.Writer, kv localstore.KV, logger *slog.Logger) error {
	global := flag.NewFlagSet("devis", flag.ContinueOnError)
	dir := global.String("dir", defaultDir(), "directory holding the saved quotes")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		return errUsage
	}
	if kv == nil {
		fkv, err := localstore.NewFileKV(*dir)
		if err != nil {
			return err
		}
		kv = fkv
	}
	ed := editor.New(localstore.New(kv), pdf.New(), logger)

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "new":
		return cmdNew(ed, rest, out)
	case "add":
		return cmdAdd(ed, rest, out)
	case "update":
		return cmdUpdate(ed, rest, out)
	case "rm":
		return cmdRemove(ed, rest, out)
	case "show":
		return cmdShow(ed, rest, out)
	case "export":
		return cmdExport(ed, rest, out)
	case "history":
		return cmdHistory(ed, out)
	}
	return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
}

func cmdNew(ed *editor.Editor, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("new", flag.ContinueOnError)
	var c quote.Company
	var cl quote.Client
	fs.StringVar(&c.Name, "company", "", "issuer name")
	fs.StringVar(&c.Address, "company-address", "", "issuer address")
	fs.StringVar(&c.SIRET, "siret", "", "issuer SIRET")
	fs.StringVar(&c.Email, "company-email", "", "issuer email")
	fs.StringVar(&c.Phone, "company-phone", "", "issuer phone")
	fs.StringVar(&cl.Name, "client", "", "client name")
	fs.StringVar(&cl.Address, "client-address", "", "client address")
	fs.StringVar(&cl.Email, "client-email", "", "client email")
	number := fs.String("number", "", "quote number (generated when empty)")
	validity := fs.String("valid-until", "", "validity date, YYYY-MM-DD")
	notes := fs.String("notes", "", "notes printed under the totals")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ed.Reset()
	ed.SetCompany(c)
	ed.SetClient(cl)
	d := ed.Quote().Details
	if *number != "" {
		d.Number = *number
	}
	if *validity != "" {
		d.Validity = *validity
	}
	d.Notes = *notes
	ed.SetDetails(d)
	if err := ed.Save(); err != nil {
		return err
	}
	fmt.Fprintf(out, "nouveau devis %s\n", ed.Quote().Number())
	return nil
}

// lineFlags registers the line item fields and returns a patch builder that
// only carries the flags actually set.
func lineFlags(fs *flag.FlagSet) func() quote.Patch {
	desc := fs.String("desc", "", "description")
	qty := fs.Float64("qty", 1, "quantity")
	price := fs.Float64("price", 0, "unit price HT")
	tva := fs.Float64("tva", 20, "TVA rate (0, 5.5, 10, 20)")
	return func() quote.Patch {
		var p quote.Patch
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "desc":
				p.Description = desc
			case "qty":
				p.Quantity = qty
			case "price":
				p.Price = price
			case "tva":
				p.TVARate = tva
			}
		})
		return p
	}
}

func checkRate(p quote.Patch) error {
	if p.TVARate != nil && !quote.ValidTVARate(*p.TVARate) {
		return fmt.Errorf("invalid TVA rate %v", *p.TVARate)
	}
	return nil
}

func cmdAdd(ed *editor.Editor, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	patch := lineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	p := patch()
	if err := checkRate(p); err != nil {
		return err
	}
	li := ed.AddLineItem()
	ed.UpdateLineItem(li.ID, p)
	if err := ed.Save(); err != nil {
		return err
	}
	fmt.Fprintf(out, "ligne %d ajoutée\n", li.ID)
	return printTotals(ed, out)
}

func cmdUpdate(ed *editor.Editor, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	id := fs.Int64("id", 0, "line id")
	patch := lineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	p := patch()
	if err := checkRate(p); err != nil {
		return err
	}
	if !ed.UpdateLineItem(*id, p) {
		return fmt.Errorf("no line %d", *id)
	}
	if err := ed.Save(); err != nil {
		return err
	}
	return printTotals(ed, out)
}

func cmdRemove(ed *editor.Editor, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("rm", flag.ContinueOnError)
	id := fs.Int64("id", 0, "line id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ed.RemoveLineItem(*id)
	if err := ed.Save(); err != nil {
		return err
	}
	return printTotals(ed, out)
}

func cmdShow(ed *editor.Editor, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print the quote as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	q := ed.Quote()
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(q)
	}
	fmt.Fprintf(out, "%s du %s, client: %s\n", q.Number(), q.Details.Date, q.Client.Name)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDESCRIPTION\tQTÉ\tPRIX\tTVA\tHT")
	for _, li := range q.Services {
		fmt.Fprintf(tw, "%d\t%s\t%g\t%.2f\t%g%%\t%.2f\n", li.ID, li.Description, li.Quantity, li.Price, li.TVARate, li.HT)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return printTotals(ed, out)
}

func cmdExport(ed *editor.Editor, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	dir := fs.String("o", ".", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	doc, err := ed.Export()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(*dir, doc.Filename)
	if err := os.WriteFile(path, doc.Data, 0o644); err != nil {
		return err
	}
	if doc.Degraded {
		fmt.Fprintf(out, "%s (version simplifiée: %v)\n", path, doc.Cause)
		return nil
	}
	fmt.Fprintln(out, path)
	return nil
}

func cmdHistory(ed *editor.Editor, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NUMÉRO\tCLIENT\tTOTAL TTC\tENREGISTRÉ")
	for _, s := range ed.History() {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", s.Number, s.ClientName, s.TotalTTC, s.SavedAt.Format("02/01/2006 15:04"))
	}
	return tw.Flush()
}

func printTotals(ed *editor.Editor, out io.Writer) error {
	t := ed.Totals()
	_, err := fmt.Fprintf(out, "HT %.2f  TVA %.2f  TTC %.2f\n", t.HT, t.TVA, t.TTC)
	return err
}
