package credential

import (
	"context"
	"testing"
)

func TestChallengeResponseVerifyFlow(t *testing.T) {
	_, parties := newTestPeers(t, "alice", "bob", "victor")
	alice, bob, victor := parties["alice"], parties["bob"], parties["victor"]
	ctx := context.Background()

	schemaDID, err := alice.Engine.CreateCredential(ctx, personSchema())
	if err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}
	bound, err := alice.Engine.BindCredential(ctx, schemaDID, bob.DID)
	if err != nil {
		t.Fatalf("BindCredential: %v", err)
	}
	vcDID, err := alice.Engine.AttestCredential(ctx, bound)
	if err != nil {
		t.Fatalf("AttestCredential: %v", err)
	}
	if _, err := bob.Engine.AcceptCredential(ctx, vcDID); err != nil {
		t.Fatalf("AcceptCredential: %v", err)
	}

	challengeDID, err := victor.Engine.CreateChallenge(ctx, Challenge{
		Credentials: []CredentialRequirement{
			{Schema: schemaDID, Attestors: []string{alice.DID}},
		},
	})
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}

	boundChallengeDID, err := victor.Engine.IssueChallenge(ctx, challengeDID, bob.DID)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}

	responseDID, err := bob.Engine.CreateResponse(ctx, boundChallengeDID)
	if err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}

	verified, err := victor.Engine.VerifyResponse(ctx, responseDID)
	if err != nil {
		t.Fatalf("VerifyResponse: %v", err)
	}
	if len(verified) != 1 {
		t.Fatalf("got %d verified credentials, want 1", len(verified))
	}
	if verified[0].Issuer != alice.DID || verified[0].CredentialSubject.ID != bob.DID {
		t.Fatalf("unexpected verified credential: %+v", verified[0])
	}

	if _, err := alice.Engine.RevokeCredential(ctx, vcDID); err != nil {
		t.Fatalf("RevokeCredential: %v", err)
	}

	responseDID2, err := bob.Engine.CreateResponse(ctx, boundChallengeDID)
	if err != nil {
		t.Fatalf("CreateResponse after revocation: %v", err)
	}
	verifiedAfterRevoke, err := victor.Engine.VerifyResponse(ctx, responseDID2)
	if err != nil {
		t.Fatalf("VerifyResponse after revocation: %v", err)
	}
	if len(verifiedAfterRevoke) != 0 {
		t.Fatalf("got %d verified credentials after revocation, want 0", len(verifiedAfterRevoke))
	}
}

func TestCreateResponseSkipsUnsatisfiedRequirements(t *testing.T) {
	_, parties := newTestPeers(t, "alice", "bob", "victor")
	alice, bob, victor := parties["alice"], parties["bob"], parties["victor"]
	ctx := context.Background()

	schemaDID, err := alice.Engine.CreateCredential(ctx, personSchema())
	if err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}

	challengeDID, err := victor.Engine.CreateChallenge(ctx, Challenge{
		Credentials: []CredentialRequirement{
			{Schema: schemaDID, Attestors: []string{alice.DID}},
		},
	})
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	boundChallengeDID, err := victor.Engine.IssueChallenge(ctx, challengeDID, bob.DID)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}

	responseDID, err := bob.Engine.CreateResponse(ctx, boundChallengeDID)
	if err != nil {
		t.Fatalf("CreateResponse with no held credentials: %v", err)
	}
	verified, err := victor.Engine.VerifyResponse(ctx, responseDID)
	if err != nil {
		t.Fatalf("VerifyResponse: %v", err)
	}
	if len(verified) != 0 {
		t.Fatalf("got %d verified credentials, want 0", len(verified))
	}
}
