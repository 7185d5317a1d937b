// Package organizer derives the storage location of a receipt file.
//
// Layout:
//
//	inbox/<original filename>                                     unassigned
//	statements/<statement>/Matched/DATE_MERCHANT_$AMOUNT_RECEIPT.ext
//	statements/<statement>/Unmatched/DATE_MERCHANT_$AMOUNT_RECEIPT.ext
//
// OrganizedPath is pure: the same receipt and statement always produce the
// same path, and missing fields fall back to UNKNOWN_* tokens.
package organizer

import (
	"path"
	"regexp"
	"strings"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
)

const (
	InboxDir      = "inbox"
	StatementsDir = "statements"
	MatchedDir    = "Matched"
	UnmatchedDir  = "Unmatched"

	UnknownDate     = "UNKNOWN_DATE"
	UnknownMerchant = "UNKNOWN_MERCHANT"
	UnknownAmount   = "UNKNOWN_AMOUNT"

	// MaxMerchantLength bounds the merchant part of generated filenames.
	MaxMerchantLength = 25
)

var (
	unsafeChars       = regexp.MustCompile(`[^A-Za-z0-9_]+`)
	unsafeFolderChars = regexp.MustCompile(`[^A-Za-z0-9_\-]+`)
	repeatedUnds      = regexp.MustCompile(`_+`)
)

// OrganizedPath computes the relative storage path for a receipt. st is the
// receipt's statement, or nil when unassigned.
func OrganizedPath(r *model.Receipt, st *model.Statement) string {
	if st == nil || !r.IsAssigned() {
		return path.Join(InboxDir, inboxName(r))
	}

	sub := UnmatchedDir
	if r.IsMatched {
		sub = MatchedDir
	}

	return path.Join(StatementsDir, StatementFolder(st), sub, FileName(r))
}

// FileName builds DATE_MERCHANT_$AMOUNT_RECEIPT.ext.
func FileName(r *model.Receipt) string {
	date := UnknownDate
	if r.HasDate() {
		date = r.Date.UTC().Format("2006-01-02")
	}

	merchant := UnknownMerchant
	if r.HasMerchant() {
		if m := SanitizeMerchant(*r.Merchant); m != "" {
			merchant = m
		}
	}

	amount := UnknownAmount
	if r.HasAmount() {
		amount = "$" + r.Amount.StringFixed(2)
	}

	return date + "_" + merchant + "_" + amount + "_RECEIPT" + extension(r)
}

// SanitizeMerchant reduces a merchant name to [A-Za-z0-9_], at most
// MaxMerchantLength characters.
func SanitizeMerchant(name string) string {
	s := unsafeChars.ReplaceAllString(strings.TrimSpace(name), "_")
	s = strings.Trim(repeatedUnds.ReplaceAllString(s, "_"), "_")
	if len(s) > MaxMerchantLength {
		s = strings.TrimRight(s[:MaxMerchantLength], "_")
	}
	return s
}

// StatementFolder is the directory name for a statement.
func StatementFolder(st *model.Statement) string {
	name := SanitizeFolder(st.Name)
	if name == "" {
		if !st.StartDate.IsZero() {
			return st.StartDate.UTC().Format("2006-01")
		}
		return SanitizeFolder(st.ID)
	}
	return name
}

// SanitizeFolder keeps folder names to [A-Za-z0-9_-].
func SanitizeFolder(name string) string {
	s := unsafeFolderChars.ReplaceAllString(strings.TrimSpace(name), "_")
	return strings.Trim(repeatedUnds.ReplaceAllString(s, "_"), "_")
}

func inboxName(r *model.Receipt) string {
	name := path.Base(strings.ReplaceAll(r.OriginalFilename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return r.ID + extension(r)
	}
	return name
}

func extension(r *model.Receipt) string {
	for _, p := range []string{r.OriginalFilename, r.StoragePath} {
		if ext := path.Ext(strings.ReplaceAll(p, "\\", "/")); ext != "" {
			return strings.ToLower(ext)
		}
	}
	return ""
}
