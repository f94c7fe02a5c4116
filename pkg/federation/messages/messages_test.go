package messages

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slucerodev/admo-core/pkg/contracts"
)

func TestBuildIdentityExchange_RejectsMissingFields(t *testing.T) {
	_, err := BuildIdentityExchange(IdentityExchangeInput{})
	require.Error(t, err)
	var ve ValidationErrors
	require.ErrorAs(t, err, &ve)
	require.NotEmpty(t, ve)
}

func TestBuildIdentityExchange_Succeeds(t *testing.T) {
	env, err := BuildIdentityExchange(IdentityExchangeInput{
		FederateID:      "cell-a",
		Nonce:           "nonce-1",
		CorrelationID:   "corr-1",
		TimestampUTC:    time.Unix(1700000000, 0).UTC(),
		PublicKeyB64:    "abcd",
		FederationRole:  contracts.RoleMember,
		ProtocolVersion: "1.2.0",
		Capabilities:    []string{"observe"},
	})
	require.NoError(t, err)
	require.Equal(t, contracts.MsgIdentityExchange, env.MsgType)
	require.Equal(t, "cell-a", env.Payload["federate_id"])
}

func TestBuildTrustEstablish_RejectsOutOfRangeScore(t *testing.T) {
	_, err := BuildTrustEstablish(TrustEstablishInput{
		FederateID:     "cell-a",
		Nonce:          "n",
		CorrelationID:  "c",
		TrustScore:     1.5,
		TranscriptHash: "h",
	})
	require.Error(t, err)
}

func TestCanonicalBytes_IsDeterministic(t *testing.T) {
	env, err := BuildCapabilityNegotiate(CapabilityNegotiateInput{
		FederateID:                "cell-a",
		Nonce:                     "n",
		CorrelationID:             "c",
		ProtocolVersionConstraint: "^1.0.0",
		SupportedCapabilities:     []string{"observe", "contain"},
	})
	require.NoError(t, err)

	b1, err := CanonicalBytes(env)
	require.NoError(t, err)
	b2, err := CanonicalBytes(env)
	require.NoError(t, err)
	require.Equal(t, b1, b2)
}

func TestPayloadHash_ChangesWithContent(t *testing.T) {
	env1, err := BuildTrustEstablish(TrustEstablishInput{
		FederateID: "cell-a", Nonce: "n", CorrelationID: "c",
		TrustScore: 0.5, TranscriptHash: "h1",
	})
	require.NoError(t, err)
	env2 := env1
	env2.Payload = map[string]any{"trust_score": 0.9, "transcript_hash": "h2"}

	h1, err := PayloadHash(env1)
	require.NoError(t, err)
	h2, err := PayloadHash(env2)
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}

func TestAttach_SetsSignature(t *testing.T) {
	env, err := BuildIdentityExchange(IdentityExchangeInput{
		FederateID: "cell-a", Nonce: "n", CorrelationID: "c",
		PublicKeyB64: "abcd", FederationRole: contracts.RoleMember, ProtocolVersion: "1.0.0",
	})
	require.NoError(t, err)

	signed := Attach(env, contracts.SignatureInfo{Algorithm: contracts.SigEd25519, KeyID: "k1", SignatureB64: "sig"})
	require.NotNil(t, signed.Signature)
	require.Equal(t, "k1", signed.Signature.KeyID)
}
