package qfx

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bherila/k1flow/src/models"
	"github.com/bherila/k1flow/src/normalizer"
)

// QFX/OFX exports are SGML-ish: tags are rarely closed and the interesting
// content lives in <STMTTRN> blocks. Regex extraction is more robust here
// than a strict XML decoder.
var (
	trnBlockRe = regexp.MustCompile(`(?s)<STMTTRN>(.*?)</STMTTRN>`)
	fieldRes   = map[string]*regexp.Regexp{}
)

func init() {
	for _, tag := range []string{"DTPOSTED", "TRNAMT", "TRNTYPE", "NAME", "MEMO", "FITID"} {
		fieldRes[tag] = regexp.MustCompile(fmt.Sprintf(`<%s>([^<\r\n]*)`, tag))
	}
}

func getField(block, tag string) string {
	if m := fieldRes[tag].FindStringSubmatch(block); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// Parse extracts the transaction list from a limited QFX-like export.
func Parse(data []byte) ([]normalizer.RawRow, *models.StatementData, error) {
	content := string(data)
	matches := trnBlockRe.FindAllStringSubmatch(content, -1)
	if matches == nil {
		return nil, nil, fmt.Errorf("no STMTTRN blocks found")
	}

	var rows []normalizer.RawRow
	for i, match := range matches {
		block := match[1]

		date := getField(block, "DTPOSTED")
		// DTPOSTED may carry a timezone suffix like 20240105120000[-5:EST];
		// keep only the leading digits.
		if idx := strings.IndexAny(date, "[ "); idx >= 0 {
			date = date[:idx]
		}

		memo := getField(block, "MEMO")
		if fitID := getField(block, "FITID"); fitID != "" {
			// Preserve the institution transaction id for traceability.
			if memo != "" {
				memo += " "
			}
			memo += "FITID:" + fitID
		}

		rows = append(rows, normalizer.RawRow{
			LineNumber:  i + 1,
			Date:        date,
			Type:        getField(block, "TRNTYPE"),
			Description: getField(block, "NAME"),
			Amount:      getField(block, "TRNAMT"),
			Memo:        memo,
		})
	}

	return rows, nil, nil
}
