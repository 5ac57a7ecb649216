// Package validator builds declarative validation from small Rule values.
//
// A Rule pairs a Check func with the error reported when it fails. Apply runs
// rules in order and aggregates every failure into ValidationErrors, which
// implements error and matches ErrValidationFailed with errors.Is.
//
// # Usage
//
//	err := validator.Apply(
//		validator.ValidEmail("mailOptions.from", opts.From),
//		validator.RequiredSlice("mailOptions.to", opts.To),
//		validator.ValidEmails("mailOptions.to", opts.To),
//		validator.Range("smtpConfig.port", cfg.Port, 0, 65535),
//	)
//	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
//		for _, field := range verrs.Fields() {
//			// report field-level problems
//		}
//	}
//
// Rules are stateless and safe for concurrent use.
package validator
