package tui

import (
	"fmt"
	"io"
	"time"

	tea "charm.land/bubbletea/v2"
)

// Displayer abstracts all output from the login flow.
type Displayer interface {
	Banner()
	AlreadyAuthenticated()
	AuthorizeURLReady(authURL, redirectURI string, deadline time.Time)
	WaitingForCallback()
	CodeReceived()
	Exchanging()
	ExchangeOK(store string)
	ExchangeFailed(err error)
	FetchingProfile()
	ProfileOK(name string)
	ProfileFailed(err error)
	Done(user string, expiresIn time.Duration)
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) Banner() {
	fmt.Fprintln(p.w, "=== Focus Hub: Connect Spotify ===")
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) AlreadyAuthenticated() {
	fmt.Fprintln(p.w, "Found existing tokens, checking them...")
}

func (p *PlainDisplayer) AuthorizeURLReady(authURL, redirectURI string, deadline time.Time) {
	fmt.Fprintln(p.w, "----------------------------------------")
	fmt.Fprintf(p.w, "Please open this link to authorize:\n%s\n", authURL)
	fmt.Fprintf(p.w, "\nYou will be redirected to: %s\n", redirectURI)
	fmt.Fprintf(p.w, "This link is valid for %s\n", formatDuration(time.Until(deadline)))
	fmt.Fprintln(p.w, "----------------------------------------")
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) WaitingForCallback() {
	fmt.Fprintln(p.w, "Waiting for authorization...")
}

func (p *PlainDisplayer) CodeReceived() {
	fmt.Fprintln(p.w, "\nAuthorization code received!")
}

func (p *PlainDisplayer) Exchanging() {
	fmt.Fprintln(p.w, "Exchanging code for tokens...")
}

func (p *PlainDisplayer) ExchangeOK(store string) {
	fmt.Fprintf(p.w, "Tokens saved to %s\n", store)
}

func (p *PlainDisplayer) ExchangeFailed(err error) {
	fmt.Fprintf(p.w, "Token exchange failed: %v\n", err)
}

func (p *PlainDisplayer) FetchingProfile() {
	fmt.Fprintln(p.w, "\nFetching profile...")
}

func (p *PlainDisplayer) ProfileOK(name string) {
	fmt.Fprintf(p.w, "Signed in as %s\n", name)
}

func (p *PlainDisplayer) ProfileFailed(err error) {
	fmt.Fprintf(p.w, "Profile request failed: %v\n", err)
}

func (p *PlainDisplayer) Done(user string, expiresIn time.Duration) {
	fmt.Fprintln(p.w, "\n========================================")
	fmt.Fprintf(p.w, "Connected to Spotify as %s\n", user)
	if expiresIn > 0 {
		fmt.Fprintf(p.w, "Access token expires in: %s\n", expiresIn.Round(time.Second))
	}
	fmt.Fprintln(p.w, "========================================")
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner()                                    {}
func (NoopDisplayer) AlreadyAuthenticated()                      {}
func (NoopDisplayer) AuthorizeURLReady(_, _ string, _ time.Time) {}
func (NoopDisplayer) WaitingForCallback()                        {}
func (NoopDisplayer) CodeReceived()                              {}
func (NoopDisplayer) Exchanging()                                {}
func (NoopDisplayer) ExchangeOK(_ string)                        {}
func (NoopDisplayer) ExchangeFailed(_ error)                     {}
func (NoopDisplayer) FetchingProfile()                           {}
func (NoopDisplayer) ProfileOK(_ string)                         {}
func (NoopDisplayer) ProfileFailed(_ error)                      {}
func (NoopDisplayer) Done(_ string, _ time.Duration)             {}
func (NoopDisplayer) Fatal(_ error)                              {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner() {
	t.p.Send(MsgBanner{})
}

func (t *ProgramDisplayer) AlreadyAuthenticated() {
	t.p.Send(MsgAlreadyAuthenticated{})
}

func (t *ProgramDisplayer) AuthorizeURLReady(authURL, redirectURI string, deadline time.Time) {
	t.p.Send(MsgAuthorizeURLReady{URL: authURL, RedirectURI: redirectURI, Deadline: deadline})
}

func (t *ProgramDisplayer) WaitingForCallback() {
	t.p.Send(MsgWaitingForCallback{})
}

func (t *ProgramDisplayer) CodeReceived() {
	t.p.Send(MsgCodeReceived{})
}

func (t *ProgramDisplayer) Exchanging() {
	t.p.Send(MsgExchanging{})
}

func (t *ProgramDisplayer) ExchangeOK(store string) {
	t.p.Send(MsgExchangeOK{Store: store})
}

func (t *ProgramDisplayer) ExchangeFailed(err error) {
	t.p.Send(MsgExchangeFailed{Err: err})
}

func (t *ProgramDisplayer) FetchingProfile() {
	t.p.Send(MsgFetchingProfile{})
}

func (t *ProgramDisplayer) ProfileOK(name string) {
	t.p.Send(MsgProfileOK{Name: name})
}

func (t *ProgramDisplayer) ProfileFailed(err error) {
	t.p.Send(MsgProfileFailed{Err: err})
}

func (t *ProgramDisplayer) Done(user string, expiresIn time.Duration) {
	t.p.Send(MsgDone{User: user, ExpiresIn: expiresIn})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
