// Package integration provides end-to-end tests for the deck builder against
// real Google APIs.
//
// Integration tests are skipped by default unless the INTEGRATION_TEST environment
// variable is set:
//
//	INTEGRATION_TEST=1 go test -v ./internal/integration/...
//
// # Required Environment Variables
//
//   - INTEGRATION_TEST: Set to "1" to enable integration tests
//   - GOOGLE_CLIENT_ID: OAuth2 client ID
//   - GOOGLE_CLIENT_SECRET: OAuth2 client secret
//   - GOOGLE_REFRESH_TOKEN: Valid refresh token for testing
//   - TEST_MASTER_DECK_ID: A master deck matching TEST_CATALOG_URL
//   - TEST_CATALOG_URL: Catalog endpoint describing the master deck
//   - TEST_FOLDER_ID: Writable Drive folder receiving the generated decks
//   - TEST_COMPANION_TEMPLATE_ID: (Optional) Companion plan template
//   - FIRESTORE_EMULATOR_HOST, GOOGLE_PROJECT_ID: (Optional) Firestore session store tests
//
// # Test Fixtures
//
// Every Drive file created by a test is tracked and trashed when the test
// completes.
package integration
