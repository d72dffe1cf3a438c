package sphere

import (
	"context"
	"strings"
	"testing"

	"github.com/bitfsorg/libnoosphere-go/keys"
	"github.com/bitfsorg/libnoosphere-go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *keys.Key {
	t.Helper()
	key, _, err := keys.Generate()
	require.NoError(t, err)
	return key
}

func TestEncodeMemo_Canonical(t *testing.T) {
	body, err := storage.ComputeCID(storage.CodecRaw, []byte("body"))
	require.NoError(t, err)

	data, err := EncodeMemo(&Memo{Body: body})
	require.NoError(t, err)
	assert.Equal(t, `{"body":{"/":"`+body.String()+`"},"headers":[]}`, string(data))

	m := &Memo{Body: body, Headers: Headers{{Name: "Title", Value: "x"}}, Parent: &body}
	data, err = EncodeMemo(m)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), `"parent":{"/":"`+body.String()+`"}}`))

	back, err := DecodeMemo(data)
	require.NoError(t, err)
	assert.True(t, back.Body.Equals(body))
	require.NotNil(t, back.Parent)
	assert.True(t, back.Parent.Equals(body))
	assert.Equal(t, m.Headers, back.Headers)
}

func TestDecodeMemo_Invalid(t *testing.T) {
	_, err := DecodeMemo([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidMemo)

	_, err = DecodeMemo([]byte(`{"headers":[]}`))
	assert.ErrorIs(t, err, ErrInvalidMemo)
}

func TestMemo_LamportOrder(t *testing.T) {
	m := &Memo{}
	assert.Equal(t, uint32(0), m.LamportOrder())

	m.Headers.Set(HeaderLamportOrder, "41")
	assert.Equal(t, uint32(41), m.LamportOrder())

	m.Headers.Set(HeaderLamportOrder, "garbage")
	assert.Equal(t, uint32(0), m.LamportOrder())
}

func TestBranchFrom(t *testing.T) {
	body, err := storage.ComputeCID(storage.CodecRaw, []byte("b"))
	require.NoError(t, err)
	parentID, err := storage.ComputeCID(storage.CodecDagJSON, []byte("p"))
	require.NoError(t, err)

	parent := &Memo{Body: body, Headers: Headers{
		{Name: HeaderContentType, Value: ContentTypeSphere},
		{Name: HeaderLamportOrder, Value: "4"},
		{Name: HeaderSignature, Value: "sig"},
		{Name: HeaderProof, Value: "proof"},
	}}

	child := BranchFrom(parentID, parent)
	require.NotNil(t, child.Parent)
	assert.True(t, child.Parent.Equals(parentID))
	assert.Equal(t, uint32(5), child.LamportOrder())
	assert.Empty(t, child.Headers.Values(HeaderSignature))
	assert.Empty(t, child.Headers.Values(HeaderProof))
	assert.Equal(t, []string{ContentTypeSphere}, child.Headers.Values(HeaderContentType))

	// Parent is untouched.
	assert.Equal(t, []string{"sig"}, parent.Headers.Values(HeaderSignature))
}

func TestMemo_SignAndVerify(t *testing.T) {
	key := testKey(t)
	body, err := storage.ComputeCID(storage.CodecRaw, []byte("signed"))
	require.NoError(t, err)

	m := &Memo{Body: body}
	require.NoError(t, m.Sign(key))

	author, err := m.VerifySignature()
	require.NoError(t, err)
	assert.Equal(t, key.Identity, author)

	other, err := storage.ComputeCID(storage.CodecRaw, []byte("other"))
	require.NoError(t, err)
	m.Body = other
	_, err = m.VerifySignature()
	assert.ErrorIs(t, err, keys.ErrInvalidSignature)
}

func TestVerifySphereMemo(t *testing.T) {
	sphereKey := testKey(t)
	owner := testKey(t)
	stranger := testKey(t)
	body, err := storage.ComputeCID(storage.CodecDagJSON, []byte("{}"))
	require.NoError(t, err)
	parentID, err := storage.ComputeCID(storage.CodecDagJSON, []byte(`{"parent":true}`))
	require.NoError(t, err)

	genesis := &Memo{Body: body, Headers: Headers{
		{Name: HeaderContentType, Value: ContentTypeSphere},
		{Name: HeaderLamportOrder, Value: "0"},
		{Name: HeaderOwner, Value: owner.Identity},
	}}
	require.NoError(t, genesis.Sign(sphereKey))
	assert.NoError(t, verifySphereMemo(genesis, nil, sphereKey.Identity))

	ownerGenesis := BranchFrom(parentID, genesis)
	ownerGenesis.Parent = nil
	require.NoError(t, ownerGenesis.Sign(owner))
	assert.ErrorIs(t, verifySphereMemo(ownerGenesis, nil, sphereKey.Identity), ErrUnauthorized)

	child := func(signer *keys.Key, edit func(*Memo)) *Memo {
		m := BranchFrom(parentID, genesis)
		if edit != nil {
			edit(m)
		}
		require.NoError(t, m.Sign(signer))
		return m
	}
	setOwner := func(id string) func(*Memo) {
		return func(m *Memo) { m.Headers.Set(HeaderOwner, id) }
	}

	tests := []struct {
		name    string
		memo    *Memo
		wantErr error
	}{
		{"by sphere key", child(sphereKey, nil), nil},
		{"by owner", child(owner, nil), nil},
		{"sphere key changes owner", child(sphereKey, setOwner(stranger.Identity)), nil},
		{"by stranger", child(stranger, nil), ErrUnauthorized},
		{"stranger claims ownership", child(stranger, setOwner(stranger.Identity)), ErrUnauthorized},
		{"owner hands off ownership", child(owner, setOwner(stranger.Identity)), ErrUnauthorized},
		{"owner drops owner header", child(owner, func(m *Memo) { m.Headers.Del(HeaderOwner) }), ErrUnauthorized},
		{"lamport skips ahead", child(owner, func(m *Memo) { m.Headers.Set(HeaderLamportOrder, "5") }), ErrInvalidMemo},
		{"unsigned", BranchFrom(parentID, genesis), ErrInvalidMemo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifySphereMemo(tt.memo, genesis, sphereKey.Identity)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	notSphere := &Memo{Body: body, Headers: Headers{{Name: HeaderContentType, Value: ContentTypeSubtext}}}
	require.NoError(t, notSphere.Sign(sphereKey))
	assert.ErrorIs(t, verifySphereMemo(notSphere, nil, sphereKey.Identity), ErrInvalidMemo)
}

func TestPutLoadMemo(t *testing.T) {
	ctx := context.Background()
	fs, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	body, err := storage.ComputeCID(storage.CodecRaw, []byte("x"))
	require.NoError(t, err)
	id, err := putMemo(ctx, fs, &Memo{Body: body, Headers: Headers{{Name: "A", Value: "1"}}})
	require.NoError(t, err)
	assert.Equal(t, uint64(storage.CodecDagJSON), id.Type())

	m, err := loadMemo(ctx, fs, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, m.Headers.Values("a"))
}
