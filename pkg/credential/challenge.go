package credential

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/openmdip/keymaster/pkg/did"
	"github.com/openmdip/keymaster/pkg/walleterr"
)

// defaultChallengeTTL is the validity window issueChallenge applies when
// binding a challenge to a subject.
const defaultChallengeTTL = time.Hour

// CreateChallenge anchors challenge as a data-DID owned by current and
// returns its DID.
func (e *Engine) CreateChallenge(ctx context.Context, challenge Challenge) (string, error) {
	name, id, err := e.Identity.CurrentIdentity()
	if err != nil {
		return "", err
	}
	priv, err := e.Identity.DeriveKeyAt(id, id.Index)
	if err != nil {
		return "", err
	}

	op := did.NewCreateDataOperation(challenge, e.Registry.RegistryName())
	signed, err := did.SignOperation(op, priv, id.DID)
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge operation: %w", err)
	}
	challengeDID, err := e.Registry.CreateDid(ctx, signed)
	if err != nil {
		return "", err
	}

	id.Owned = append(id.Owned, challengeDID)
	e.Identity.Wallet.Ids[name] = id
	if err := e.Identity.Wallet.Save(); err != nil {
		return "", err
	}
	return challengeDID, nil
}

// IssueChallenge fetches challengeDID, binds it to subjectDID with a
// validity window, signs it, encrypts it to the subject, and returns the
// resulting envelope DID.
func (e *Engine) IssueChallenge(ctx context.Context, challengeDID, subjectDID string) (string, error) {
	_, id, err := e.Identity.CurrentIdentity()
	if err != nil {
		return "", err
	}

	resolved, err := e.Registry.ResolveDid(ctx, challengeDID)
	if err != nil {
		return "", err
	}
	var challenge Challenge
	if err := decodeInto(resolved.DidDocumentMetadata.Data, &challenge); err != nil {
		return "", fmt.Errorf("data-DID is not a challenge: %w", err)
	}

	now := time.Now().UTC()
	bound := BoundChallenge{
		Challenge:  challenge,
		From:       id.DID,
		To:         subjectDID,
		ValidFrom:  now.Format(time.RFC3339),
		ValidUntil: now.Add(defaultChallengeTTL).Format(time.RFC3339),
	}

	signed, err := e.AddSignature(bound)
	if err != nil {
		return "", err
	}
	return e.EncryptJSON(ctx, signed, subjectDID)
}

// CreateResponse decrypts a bound challenge addressed to current, scans
// current's held credentials for one satisfying each requirement, and
// anchors a presentation encrypted to the challenge's issuer.
func (e *Engine) CreateResponse(ctx context.Context, boundChallengeDID string) (string, error) {
	name, id, err := e.Identity.CurrentIdentity()
	if err != nil {
		return "", err
	}

	var bound BoundChallenge
	if err := e.DecryptJSON(ctx, boundChallengeDID, &bound); err != nil {
		return "", err
	}
	if !e.VerifySignature(ctx, bound) {
		return "", walleterr.InvalidVC()
	}

	var items []PresentationItem
	for _, req := range bound.Challenge.Credentials {
		vcDID, vc, ok := e.findHeldCredential(ctx, id.Held, req)
		if !ok {
			continue
		}

		// Re-encrypt the issuer-signed credential as-is: the verifier
		// checks the issuer's signature, not the presenter's.
		vpDID, err := e.EncryptJSON(ctx, vc, bound.From)
		if err != nil {
			return "", err
		}
		items = append(items, PresentationItem{VC: vcDID, VP: vpDID})
	}

	presentation := Presentation{Challenge: boundChallengeDID, Credentials: items}
	responseDID, err := e.EncryptJSON(ctx, presentation, bound.From)
	if err != nil {
		return "", err
	}

	// EncryptJSON may already have recorded the response on this same
	// identity record; keep owned free of duplicates.
	if !slices.Contains(id.Owned, responseDID) {
		id.Owned = append(id.Owned, responseDID)
	}
	e.Identity.Wallet.Ids[name] = id
	if err := e.Identity.Wallet.Save(); err != nil {
		return "", err
	}
	return responseDID, nil
}

// findHeldCredential scans held for a credential satisfying req, returning
// its DID and decrypted content.
func (e *Engine) findHeldCredential(ctx context.Context, held []string, req CredentialRequirement) (string, Credential, bool) {
	for _, vcDID := range held {
		var vc Credential
		if err := e.DecryptJSON(ctx, vcDID, &vc); err != nil {
			continue
		}
		if vc.CredentialSchema != req.Schema {
			continue
		}
		if !attestedBy(vc.Issuer, req.Attestors) {
			continue
		}
		return vcDID, vc, true
	}
	return "", Credential{}, false
}

func attestedBy(issuer string, attestors []string) bool {
	for _, a := range attestors {
		if a == issuer {
			return true
		}
	}
	return false
}

// VerifyResponse decrypts a presentation addressed to current, resolves
// its bound challenge, and returns the decrypted credentials that satisfy
// a requirement, are validly signed, and are not deactivated. Credentials
// that fail any check are dropped, shortening the returned list rather
// than failing the call.
func (e *Engine) VerifyResponse(ctx context.Context, responseDID string) ([]Credential, error) {
	var presentation Presentation
	if err := e.DecryptJSON(ctx, responseDID, &presentation); err != nil {
		return nil, err
	}

	var bound BoundChallenge
	if err := e.DecryptJSON(ctx, presentation.Challenge, &bound); err != nil {
		return nil, err
	}

	var verified []Credential
	for _, req := range bound.Challenge.Credentials {
		vc, ok := e.verifyPresentationItem(ctx, presentation.Credentials, req)
		if !ok {
			continue
		}
		verified = append(verified, vc)
	}
	return verified, nil
}

// verifyPresentationItem finds the first presentation item satisfying req,
// verifying its signature and checking the underlying attestation DID has
// not been deactivated.
func (e *Engine) verifyPresentationItem(ctx context.Context, items []PresentationItem, req CredentialRequirement) (Credential, bool) {
	for _, item := range items {
		var vc Credential
		if err := e.DecryptJSON(ctx, item.VP, &vc); err != nil {
			continue
		}
		if vc.CredentialSchema != req.Schema || !attestedBy(vc.Issuer, req.Attestors) {
			continue
		}
		if !e.VerifySignature(ctx, vc) {
			continue
		}
		resolved, err := e.Registry.ResolveDid(ctx, item.VC)
		if err != nil || resolved.DidDocumentMetadata.Deactivated {
			continue
		}
		return vc, true
	}
	return Credential{}, false
}
