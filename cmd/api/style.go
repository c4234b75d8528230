package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pterm/pterm"

	"voting-ledger/blockchain/ledger"
	"voting-ledger/models"
	"voting-ledger/service"
)

func renderChain(chain []models.ExportedEntry) {
	data := pterm.TableData{{"#", "Created", "Payload", "Nonce", "Previous", "Digest"}}
	for _, e := range chain {
		data = append(data, []string{
			fmt.Sprint(e.Index),
			e.CreatedAt.Format("15:04:05.000"),
			formatPayload(e.Payload),
			fmt.Sprint(e.Nonce),
			short(e.PreviousDigest),
			short(e.Digest),
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func renderValidity(label string, chain *ledger.Ledger) {
	if chain.IsValid() {
		pterm.Success.Printfln("%s is valid (%d entries)", label, chain.Len())
		return
	}
	pterm.Error.Printfln("%s is INVALID", label)
}

func renderResults(results *service.ElectionResults) {
	data := pterm.TableData{{"Candidate", "Votes", "Share"}}
	for _, r := range results.Results {
		data = append(data, []string{
			r.Candidate.Name,
			fmt.Sprint(r.Votes),
			fmt.Sprintf("%.1f%%", r.Percentage),
		})
	}
	pterm.DefaultSection.Println("Results")
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func formatPayload(p models.Payload) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == models.FieldTimestamp {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, p[k]))
	}
	return strings.Join(parts, " ")
}

func short(digest string) string {
	if len(digest) <= 12 {
		return digest
	}
	return digest[:12] + "…"
}
