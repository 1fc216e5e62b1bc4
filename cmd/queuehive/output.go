package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"queuehive/internal/models"
)

var stdout io.Writer = os.Stdout

type outputFlags struct {
	json bool
}

func (o *outputFlags) add(fs *pflag.FlagSet) {
	fs.BoolVar(&o.json, "json", false, "print JSON instead of a table")
}

func printJSON(v any) error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// printTable writes rows under header unless JSON output was requested, in
// which case raw is encoded instead.
func (o outputFlags) printTable(raw any, header string, rows [][]any) error {
	if o.json {
		return printJSON(raw)
	}
	tw := tabwriter.NewWriter(stdout, 2, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func (o outputFlags) printTokens(tokens []models.Token) error {
	rows := make([][]any, 0, len(tokens))
	for _, t := range tokens {
		rows = append(rows, []any{t.ID, t.TokenNumber, t.ServiceID, t.UserID, t.Status, formatTime(t.CreatedAt)})
	}
	return o.printTable(tokens, "ID\tNUMBER\tSERVICE\tUSER\tSTATUS\tCREATED", rows)
}

func (o outputFlags) printToken(token models.Token) error {
	if o.json {
		return printJSON(token)
	}
	return o.printTokens([]models.Token{token})
}

func (o outputFlags) printCompanies(companies []models.Company) error {
	rows := make([][]any, 0, len(companies))
	for _, c := range companies {
		rows = append(rows, []any{c.ID, c.Name, c.Category, c.Location, approvedLabel(c.Approved)})
	}
	return o.printTable(companies, "ID\tNAME\tCATEGORY\tLOCATION\tSTATE", rows)
}

func (o outputFlags) printServices(services []models.Service) error {
	rows := make([][]any, 0, len(services))
	for _, s := range services {
		rows = append(rows, []any{s.ID, s.CompanyID, s.Name, fmt.Sprintf("%d min", s.AverageServiceTime)})
	}
	return o.printTable(services, "ID\tCOMPANY\tNAME\tAVG TIME", rows)
}

func (o outputFlags) printUsers(users []models.User) error {
	rows := make([][]any, 0, len(users))
	for _, u := range users {
		rows = append(rows, []any{u.ID, u.FullName, u.Email, u.Role})
	}
	return o.printTable(users, "ID\tNAME\tEMAIL\tROLE", rows)
}

func approvedLabel(approved bool) string {
	if approved {
		return "approved"
	}
	return "pending"
}

func formatTime(ts models.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04")
}
