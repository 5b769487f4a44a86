// Package diagnose maps raw pipeline failures onto the closed
// classification taxonomy defined in internal/model.
//
// Classification is a total function: every error, including nil and
// errors no rule anticipated, produces a ClassifiedError whose title,
// detail, and suggestion are all non-empty. The CLI surfaces these three
// fields verbatim, so nothing here may leak stack traces or wrapped
// error chains beyond the server-supplied detail text.
//
// Design decision: We express the cascade as an ordered rule list rather
// than nested conditionals because:
//  1. The first-match-wins order is visible in one place
//  2. Each rule's predicate and classification are independently testable
//  3. The trailing catch-all rule makes totality checkable by inspection
package diagnose
