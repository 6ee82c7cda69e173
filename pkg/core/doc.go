// Package core is the stable facade over the sanitizer engine for programs
// that embed it. It works on raw template bytes: decode, detect, redact and
// re-encode in one call, without exposing internal packages.
//
// Example:
//
//	rs, err := core.DefaultRules()
//	if err != nil { /* handle */ }
//	out, findings, err := core.Sanitize(rs, template, core.FormatYAML, core.Options{})
//	if err != nil { /* handle */ }
//	_ = core.MarshalFindings(os.Stdout, findings)
package core
