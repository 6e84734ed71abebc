// Command consentsync reconciles legacy subscription and customer records
// into unified user identities and backfills their GDPR consent.
//
// Run "consentsync build-identities" to create identities, then
// "consentsync backfill-consent" to carry newer consent onto them, or
// "consentsync run" for both. "consentsync doctor" and "consentsync status"
// inspect the environment without writing.
package main
