package tui

import (
	"time"
)

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{}

// MsgAlreadyAuthenticated signals that stored tokens were found.
type MsgAlreadyAuthenticated struct{}

// MsgAuthorizeURLReady signals that the user should open the authorize URL.
type MsgAuthorizeURLReady struct {
	URL         string
	RedirectURI string
	Deadline    time.Time
}

// MsgWaitingForCallback signals that the local listener is waiting for the redirect.
type MsgWaitingForCallback struct{}

// MsgCodeReceived signals that an authorization code arrived.
type MsgCodeReceived struct{}

// MsgExchanging signals that the code is being exchanged for tokens.
type MsgExchanging struct{}

// MsgExchangeOK signals a successful exchange.
type MsgExchangeOK struct{ Store string }

// MsgExchangeFailed signals that the exchange was rejected.
type MsgExchangeFailed struct{ Err error }

// MsgFetchingProfile signals that the user profile is being fetched.
type MsgFetchingProfile struct{}

// MsgProfileOK signals that the profile was fetched.
type MsgProfileOK struct{ Name string }

// MsgProfileFailed signals that the profile request failed.
type MsgProfileFailed struct{ Err error }

// MsgDone signals successful completion of the login flow.
type MsgDone struct {
	User      string
	ExpiresIn time.Duration
}

// MsgFatal signals a fatal error that should terminate the flow.
type MsgFatal struct{ Err error }
