package protocol

// Dialect determines the spelling of sentinel lines. Sentinels are told apart from
// content only by convention, so both sides must agree on the dialect.
type Dialect struct {
	// Prefix is prepended to every sentinel word.
	Prefix string

	// LeadingGood means a successful get response starts with the good
	// sentinel, which is not part of the file. Without it, any first line
	// other than bad is file content.
	LeadingGood bool
}

var (
	// Plain is the default dialect, sentinels are bare words.
	Plain = Dialect{}
	// Backslash prefixes sentinels with a single backslash, as in \done, and
	// marks successful get responses with a leading good sentinel.
	Backslash = Dialect{Prefix: `\`, LeadingGood: true}
)

// DialectFor returns the dialect using the given sentinel prefix.
func DialectFor(prefix string) Dialect {
	if prefix == Backslash.Prefix {
		return Backslash
	}
	return Dialect{Prefix: prefix}
}

// Done ends a listing or file response on the data connection.
func (d Dialect) Done() string { return d.Prefix + "done" }

// Good accepts a request on the control connection.
func (d Dialect) Good() string { return d.Prefix + "good" }

// Bad starts a failed get response on the data connection.
func (d Dialect) Bad() string { return d.Prefix + "bad" }

// Ready is sent by the client when its data listener is up, and again when it is
// prepared to receive file content.
func (d Dialect) Ready() string { return d.Prefix + "ready" }

// Cancel is sent by the client to abort a transfer.
func (d Dialect) Cancel() string { return d.Prefix + "cancel" }
