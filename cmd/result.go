package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"webauth/internal/authflow"
	pkgstrings "webauth/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/oauth2"
)

// renderResult prints a completed flow as a KEY/VALUE table. Secrets are
// redacted unless showSecrets is set.
func renderResult(w io.Writer, flow *authflow.Flow, result authflow.CredentialResult, token *oauth2.Token, showSecrets bool) {
	secret := pkgstrings.Mask
	if showSecrets {
		secret = func(s string) string { return s }
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("KEY"),
		text.FgHiCyan.Sprint("VALUE"),
	})

	row := func(key, value string) {
		if value != "" {
			t.AppendRow(table.Row{key, value})
		}
	}

	if flow != nil {
		row("Flow", flow.ID.String())
		row("Title", flow.Title)
	}
	row("Protocol", string(result.Protocol))
	row("Status", text.FgGreen.Sprint("Authenticated"))

	row("Access token", secret(result.Token))
	row("Token type", result.TokenType)
	if result.ExpiresIn > 0 {
		row("Expires in", result.ExpiresIn.Round(time.Second).String())
	}
	row("Scope", result.Scope)
	row("Code", secret(result.Code))
	row("ID token", secret(result.IDToken))
	if result.Assertion != "" {
		row("Assertion", fmt.Sprintf("%d bytes", len(result.Assertion)))
	}

	if token != nil {
		t.AppendSeparator()
		row("Exchanged access token", secret(token.AccessToken))
		row("Exchanged token type", token.Type())
		row("Refresh token", secret(token.RefreshToken))
		if !token.Expiry.IsZero() {
			row("Expiry", token.Expiry.Format(time.RFC3339))
		}
	}

	claims := result.Claims()
	if len(claims) > 0 {
		t.AppendSeparator()
		names := make([]string, 0, len(claims))
		for name := range claims {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			row(name, pkgstrings.Truncate(claims[name], pkgstrings.DefaultValueMaxLen))
		}
	}

	t.Render()
}
