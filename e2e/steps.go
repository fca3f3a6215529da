package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
)

// RegisterSteps registers all step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Step(`^the consent ledger is running$`, tc.ledgerIsRunning)

	// Study steps
	ctx.Step(`^"([^"]*)" creates a study titled "([^"]*)"$`, tc.createStudy)
	ctx.Step(`^"([^"]*)" sets the study active to (true|false)$`, tc.setStudyActive)

	// Consent steps
	ctx.Step(`^"([^"]*)" requests consent from "([^"]*)"$`, tc.requestConsent)
	ctx.Step(`^"([^"]*)" grants the consent$`, tc.grantEmbedded)
	ctx.Step(`^"([^"]*)" grants the consent as a token$`, tc.grantToken)
	ctx.Step(`^"([^"]*)" revokes the consent$`, tc.revokeConsent)
	ctx.Step(`^I fetch the consent status of "([^"]*)"$`, tc.fetchConsentStatus)
	ctx.Step(`^I fetch the consent credential$`, tc.fetchCredential)

	// Permission steps
	ctx.Step(`^"([^"]*)" sets permission "([^"]*)" to (true|false)$`, tc.setPermission)
	ctx.Step(`^I check permission "([^"]*)"$`, tc.checkPermission)

	// Credential steps
	ctx.Step(`^I verify the issued credential$`, tc.verifyCredential)
	ctx.Step(`^I verify the issued credential after tampering with its subject$`, tc.verifyTamperedCredential)
	ctx.Step(`^I verify the issued token$`, tc.verifyToken)

	// Document steps
	ctx.Step(`^"([^"]*)" uploads the document "([^"]*)"$`, tc.uploadDocument)
	ctx.Step(`^I fetch the uploaded document$`, tc.fetchDocument)

	// Assertion steps
	ctx.Step(`^the response status should be (\d+)$`, tc.responseStatusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, tc.responseShouldContain)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, tc.responseFieldShouldEqual)
	ctx.Step(`^the response body should equal "([^"]*)"$`, tc.responseBodyShouldEqual)
}

func (tc *TestContext) ledgerIsRunning(ctx context.Context) error {
	if err := tc.Do(http.MethodGet, "/studies", "", nil); err != nil {
		return err
	}
	return tc.responseStatusShouldBe(ctx, http.StatusOK)
}

func (tc *TestContext) createStudy(ctx context.Context, role, title string) error {
	if err := tc.Do(http.MethodPost, "/studies", role, map[string]any{"title": title}); err != nil {
		return err
	}
	if tc.GetLastResponseStatus() == http.StatusCreated {
		id, err := tc.uintField("id")
		if err != nil {
			return err
		}
		tc.StudyID = id
	}
	return nil
}

func (tc *TestContext) setStudyActive(ctx context.Context, role, active string) error {
	path := fmt.Sprintf("/studies/%d/active", tc.StudyID)
	return tc.Do(http.MethodPut, path, role, map[string]any{"active": active == "true"})
}

func (tc *TestContext) requestConsent(ctx context.Context, role, participant string) error {
	addr, err := tc.Address(participant)
	if err != nil {
		return err
	}
	docRef := tc.Document
	if docRef == "" {
		docRef = "sha256-consent-form"
	}
	path := fmt.Sprintf("/studies/%d/consents", tc.StudyID)
	if err := tc.Do(http.MethodPost, path, role, map[string]any{
		"participant":  addr,
		"document_ref": docRef,
	}); err != nil {
		return err
	}
	if tc.GetLastResponseStatus() == http.StatusCreated {
		id, err := tc.uintField("id")
		if err != nil {
			return err
		}
		tc.ConsentID = id
	}
	return nil
}

func (tc *TestContext) grantEmbedded(ctx context.Context, role string) error {
	return tc.grant(role, "embedded")
}

func (tc *TestContext) grantToken(ctx context.Context, role string) error {
	return tc.grant(role, "token")
}

func (tc *TestContext) grant(role, format string) error {
	path := fmt.Sprintf("/consents/%d/grant", tc.ConsentID)
	if err := tc.Do(http.MethodPost, path, role, map[string]any{"format": format}); err != nil {
		return err
	}
	if tc.GetLastResponseStatus() != http.StatusOK {
		return nil
	}
	var resp struct {
		Credential json.RawMessage `json:"credential"`
	}
	if err := json.Unmarshal(tc.LastResponseBody, &resp); err != nil {
		return fmt.Errorf("failed to decode grant response: %w", err)
	}
	tc.Credential = resp.Credential
	return nil
}

func (tc *TestContext) revokeConsent(ctx context.Context, role string) error {
	return tc.Do(http.MethodPost, fmt.Sprintf("/consents/%d/revoke", tc.ConsentID), role, nil)
}

func (tc *TestContext) fetchConsentStatus(ctx context.Context, participant string) error {
	addr, err := tc.Address(participant)
	if err != nil {
		return err
	}
	return tc.Do(http.MethodGet, fmt.Sprintf("/studies/%d/participants/%s/status", tc.StudyID, addr), "", nil)
}

func (tc *TestContext) fetchCredential(ctx context.Context) error {
	return tc.Do(http.MethodGet, fmt.Sprintf("/consents/%d/credential", tc.ConsentID), "", nil)
}

func (tc *TestContext) setPermission(ctx context.Context, role, key, granted string) error {
	path := fmt.Sprintf("/consents/%d/permissions/%s", tc.ConsentID, key)
	return tc.Do(http.MethodPut, path, role, map[string]any{"granted": granted == "true"})
}

func (tc *TestContext) checkPermission(ctx context.Context, key string) error {
	return tc.Do(http.MethodGet, fmt.Sprintf("/consents/%d/permissions/%s", tc.ConsentID, key), "", nil)
}

func (tc *TestContext) verifyCredential(ctx context.Context) error {
	if len(tc.Credential) == 0 {
		return fmt.Errorf("no credential has been issued")
	}
	return tc.Do(http.MethodPost, "/credentials/verify", "", []byte(tc.Credential))
}

func (tc *TestContext) verifyTamperedCredential(ctx context.Context) error {
	var doc map[string]any
	if err := json.Unmarshal(tc.Credential, &doc); err != nil {
		return fmt.Errorf("failed to decode credential: %w", err)
	}
	subject, ok := doc["credentialSubject"].(map[string]any)
	if !ok {
		return fmt.Errorf("credential has no subject")
	}
	subject["tampered"] = true
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return tc.Do(http.MethodPost, "/credentials/verify", "", raw)
}

func (tc *TestContext) verifyToken(ctx context.Context) error {
	var doc struct {
		Proof struct {
			JWT string `json:"jwt"`
		} `json:"proof"`
	}
	if err := json.Unmarshal(tc.Credential, &doc); err != nil {
		return fmt.Errorf("failed to decode credential: %w", err)
	}
	if doc.Proof.JWT == "" {
		return fmt.Errorf("credential carries no token proof")
	}
	return tc.Do(http.MethodPost, "/credentials/verify-token", "", map[string]any{"token": doc.Proof.JWT})
}

func (tc *TestContext) uploadDocument(ctx context.Context, role, content string) error {
	if err := tc.Do(http.MethodPost, "/documents", role, []byte(content)); err != nil {
		return err
	}
	if tc.GetLastResponseStatus() == http.StatusCreated {
		cid, err := tc.GetResponseField("cid")
		if err != nil {
			return err
		}
		tc.Document = fmt.Sprint(cid)
	}
	return nil
}

func (tc *TestContext) fetchDocument(ctx context.Context) error {
	return tc.Do(http.MethodGet, "/documents/"+tc.Document, "", nil)
}

func (tc *TestContext) responseStatusShouldBe(ctx context.Context, expected int) error {
	if got := tc.GetLastResponseStatus(); got != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, got, string(tc.LastResponseBody))
	}
	return nil
}

func (tc *TestContext) responseShouldContain(ctx context.Context, text string) error {
	if !strings.Contains(string(tc.LastResponseBody), text) {
		return fmt.Errorf("response does not contain %q: %s", text, string(tc.LastResponseBody))
	}
	return nil
}

func (tc *TestContext) responseFieldShouldEqual(ctx context.Context, field, expected string) error {
	value, err := tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(value); got != expected {
		return fmt.Errorf("expected %s to be %q, got %q", field, expected, got)
	}
	return nil
}

func (tc *TestContext) responseBodyShouldEqual(ctx context.Context, expected string) error {
	if got := string(tc.LastResponseBody); got != expected {
		return fmt.Errorf("expected body %q, got %q", expected, got)
	}
	return nil
}

func (tc *TestContext) uintField(field string) (uint64, error) {
	value, err := tc.GetResponseField(field)
	if err != nil {
		return 0, err
	}
	n, ok := value.(float64)
	if !ok {
		return 0, fmt.Errorf("field %s is not a number", field)
	}
	return uint64(n), nil
}
