package privacy

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/privacy"
)

type memoryMappings struct {
	byKey map[string]*privacy.PseudonymMapping
}

func newMemoryMappings() *memoryMappings {
	return &memoryMappings{byKey: make(map[string]*privacy.PseudonymMapping)}
}

func (m *memoryMappings) Insert(_ context.Context, mapping *privacy.PseudonymMapping) error {
	m.byKey[mapping.Pseudonym+"|"+mapping.Purpose] = mapping
	return nil
}

func (m *memoryMappings) GetByPseudonym(_ context.Context, pseudonym, purpose string) (*privacy.PseudonymMapping, error) {
	return m.byKey[pseudonym+"|"+purpose], nil
}

type staticAuthorizer bool

func (a staticAuthorizer) AuthorizeReversal(context.Context, Authorization) bool {
	return bool(a)
}

func newTestEngine(t *testing.T, authorize bool) Service {
	t.Helper()
	svc, err := NewEngine(Config{
		PseudonymSecret:  []byte("0123456789abcdef0123456789abcdef"),
		PBKDF2Iterations: 100000,
	}, zap.NewNop(), newMemoryMappings(), staticAuthorizer(authorize), nil)
	require.NoError(t, err)
	return svc
}

func patientRecords() []privacy.Record {
	return []privacy.Record{
		{"age": 34.0, "city": "Recife", "diagnosis": "hypertension"},
		{"age": 36.0, "city": "Recife", "diagnosis": "diabetes"},
		{"age": 35.0, "city": "Recife", "diagnosis": "asthma"},
		{"age": 71.0, "city": "Olinda", "diagnosis": "arrhythmia"},
	}
}

func TestNewEngine(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantErr  bool
		wantCode string
	}{
		{
			name:   "defaults applied",
			config: Config{},
		},
		{
			name:     "weak KDF rejected",
			config:   Config{PBKDF2Iterations: 50000},
			wantErr:  true,
			wantCode: "WEAK_KDF",
		},
		{
			name:     "short secret rejected",
			config:   Config{PseudonymSecret: []byte("too-short")},
			wantErr:  true,
			wantCode: "WEAK_PSEUDONYM_SECRET",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewEngine(tt.config, nil, nil, nil, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, tt.wantCode))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestApplyKAnonymity(t *testing.T) {
	svc := newTestEngine(t, false)
	ctx := context.Background()

	t.Run("suppresses undersized groups whole", func(t *testing.T) {
		dataset, err := svc.ApplyKAnonymity(ctx, patientRecords(), []string{"city"}, 3)
		require.NoError(t, err)

		// The single Olinda record must disappear entirely.
		assert.Len(t, dataset.Records, 3)
		assert.Equal(t, 1, dataset.Metadata.SuppressedCount)
		assert.Equal(t, 3, dataset.Metadata.KAnonymity)
		for _, record := range dataset.Records {
			assert.NotEqual(t, "Olinda", record["city"])
		}
	})

	t.Run("generalizes numeric quasi-identifiers to ranges", func(t *testing.T) {
		dataset, err := svc.ApplyKAnonymity(ctx, patientRecords(), []string{"city", "age"}, 1)
		require.NoError(t, err)
		require.Len(t, dataset.Records, 4)

		// With k=1 every group survives; single-member numeric groups
		// keep their exact value.
		for _, record := range dataset.Records {
			assert.NotNil(t, record["age"])
		}
	})

	t.Run("collapses mixed string groups to wildcard", func(t *testing.T) {
		records := []privacy.Record{
			{"region": "NE", "plan": "basic"},
			{"region": "NE", "plan": "premium"},
		}
		dataset, err := svc.ApplyKAnonymity(ctx, records, []string{"region", "plan"}, 1)
		require.NoError(t, err)
		assert.Len(t, dataset.Records, 2)
	})

	t.Run("reports information loss", func(t *testing.T) {
		dataset, err := svc.ApplyKAnonymity(ctx, patientRecords(), []string{"city"}, 3)
		require.NoError(t, err)
		assert.InDelta(t, 0.25, dataset.Metadata.InformationLoss, 1e-9)
		assert.InDelta(t, 0.75, dataset.Metadata.DataUtility, 1e-9)
	})

	t.Run("rejects invalid parameters", func(t *testing.T) {
		_, err := svc.ApplyKAnonymity(ctx, patientRecords(), []string{"city"}, 0)
		assert.True(t, errors.IsCode(err, "INVALID_K"))

		_, err = svc.ApplyKAnonymity(ctx, patientRecords(), nil, 2)
		assert.True(t, errors.IsCode(err, "MISSING_QUASI_IDENTIFIERS"))
	})

	t.Run("does not mutate input records", func(t *testing.T) {
		records := patientRecords()
		_, err := svc.ApplyKAnonymity(ctx, records, []string{"city"}, 2)
		require.NoError(t, err)
		assert.Equal(t, 34.0, records[0]["age"])
		assert.Equal(t, "hypertension", records[0]["diagnosis"])
	})
}

func TestApplyLDiversity(t *testing.T) {
	svc := newTestEngine(t, false)
	ctx := context.Background()

	makeDataset := func(records []privacy.Record, quasi []string) *privacy.AnonymizedDataset {
		return &privacy.AnonymizedDataset{
			Records: records,
			Metadata: privacy.DatasetMetadata{
				OriginalCount:     len(records),
				AnonymizedCount:   len(records),
				GeneralizedFields: quasi,
			},
		}
	}

	t.Run("keeps diverse groups", func(t *testing.T) {
		dataset := makeDataset([]privacy.Record{
			{"city": "Recife", "diagnosis": "hypertension"},
			{"city": "Recife", "diagnosis": "diabetes"},
		}, []string{"city"})

		out, err := svc.ApplyLDiversity(ctx, dataset, []string{"diagnosis"}, 2, 2)
		require.NoError(t, err)
		assert.Len(t, out.Records, 2)
		assert.Equal(t, 2, out.Metadata.LDiversity)
	})

	t.Run("suppresses homogeneous groups", func(t *testing.T) {
		dataset := makeDataset([]privacy.Record{
			{"city": "Recife", "diagnosis": "flu"},
			{"city": "Recife", "diagnosis": "flu"},
		}, []string{"city"})

		out, err := svc.ApplyLDiversity(ctx, dataset, []string{"diagnosis"}, 2, 2)
		require.NoError(t, err)
		assert.Empty(t, out.Records)
		assert.Equal(t, 2, out.Metadata.SuppressedCount)
	})

	t.Run("truncation can restore diversity", func(t *testing.T) {
		// Distinct after truncating to 3 characters.
		dataset := makeDataset([]privacy.Record{
			{"city": "Recife", "diagnosis": "cardiopathy"},
			{"city": "Recife", "diagnosis": "dermatitis"},
			{"city": "Recife", "diagnosis": "cardiomegaly"},
		}, []string{"city"})

		out, err := svc.ApplyLDiversity(ctx, dataset, []string{"diagnosis"}, 2, 3)
		require.NoError(t, err)
		require.Len(t, out.Records, 3)
		for _, record := range out.Records {
			assert.LessOrEqual(t, len(record["diagnosis"].(string)), 3)
		}
	})

	t.Run("rejects invalid parameters", func(t *testing.T) {
		_, err := svc.ApplyLDiversity(ctx, nil, []string{"diagnosis"}, 2, 2)
		assert.True(t, errors.IsCode(err, "MISSING_DATASET"))

		dataset := makeDataset(nil, nil)
		_, err = svc.ApplyLDiversity(ctx, dataset, nil, 2, 2)
		assert.True(t, errors.IsCode(err, "MISSING_SENSITIVE_ATTRIBUTES"))

		_, err = svc.ApplyLDiversity(ctx, dataset, []string{"diagnosis"}, 0, 2)
		assert.True(t, errors.IsCode(err, "INVALID_L"))
	})
}

func TestAddDifferentialPrivacy(t *testing.T) {
	svc := newTestEngine(t, false)

	t.Run("validates inputs", func(t *testing.T) {
		_, err := svc.AddDifferentialPrivacy(100, 0, 1, MechanismLaplace)
		assert.True(t, errors.IsCode(err, "INVALID_EPSILON"))

		_, err = svc.AddDifferentialPrivacy(100, 1, 0, MechanismLaplace)
		assert.True(t, errors.IsCode(err, "INVALID_SENSITIVITY"))

		_, err = svc.AddDifferentialPrivacy(100, 1, 1, Mechanism("exponential"))
		assert.True(t, errors.IsCode(err, "INVALID_MECHANISM"))
	})

	t.Run("laplace noise stays near the value at high epsilon", func(t *testing.T) {
		var sum float64
		const trials = 200
		for i := 0; i < trials; i++ {
			noisy, err := svc.AddDifferentialPrivacy(100, 100, 1, MechanismLaplace)
			require.NoError(t, err)
			require.False(t, math.IsNaN(noisy))
			sum += noisy
		}
		assert.InDelta(t, 100, sum/trials, 1)
	})

	t.Run("gaussian noise stays near the value at high epsilon", func(t *testing.T) {
		noisy, err := svc.AddDifferentialPrivacy(50, 1000, 1, MechanismGaussian)
		require.NoError(t, err)
		assert.InDelta(t, 50, noisy, 1)
	})
}

func TestConfiguredAnonymityDefaults(t *testing.T) {
	svc, err := NewEngine(Config{
		PBKDF2Iterations: 100000,
		DefaultK:         3,
		DefaultL:         2,
	}, zap.NewNop(), nil, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	// k omitted by the caller; the configured default applies.
	dataset, err := svc.ApplyKAnonymity(ctx, patientRecords(), []string{"city"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, dataset.Metadata.KAnonymity)
	assert.Equal(t, 1, dataset.Metadata.SuppressedCount)

	out, err := svc.ApplyLDiversity(ctx, dataset, []string{"diagnosis"}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, out.Records, 3)
}

func TestCreatePseudonym(t *testing.T) {
	svc := newTestEngine(t, true)
	ctx := context.Background()

	t.Run("reversible pseudonym round-trips", func(t *testing.T) {
		pseudonym, err := svc.CreatePseudonym(ctx, "patient-42", "analytics", true)
		require.NoError(t, err)
		assert.Equal(t, privacy.AlgorithmHMACSHA256, pseudonym.Algorithm)
		assert.True(t, pseudonym.Reversible)
		assert.NotEmpty(t, pseudonym.Salt)

		identifier, err := svc.ReversePseudonym(ctx, pseudonym.Pseudonym, "analytics", Authorization{
			ActorID: "auditor-1",
			Purpose: "analytics",
			Grant:   "court-order-7",
		})
		require.NoError(t, err)
		assert.Equal(t, "patient-42", identifier)
	})

	t.Run("irreversible pseudonym stores no mapping", func(t *testing.T) {
		pseudonym, err := svc.CreatePseudonym(ctx, "patient-42", "export", false)
		require.NoError(t, err)
		assert.Equal(t, privacy.AlgorithmPBKDF2SHA256, pseudonym.Algorithm)
		assert.False(t, pseudonym.Reversible)

		_, err = svc.ReversePseudonym(ctx, pseudonym.Pseudonym, "export", Authorization{ActorID: "auditor-1"})
		require.Error(t, err)
	})

	t.Run("pseudonyms are purpose-bound", func(t *testing.T) {
		a, err := svc.CreatePseudonym(ctx, "patient-42", "billing", true)
		require.NoError(t, err)
		b, err := svc.CreatePseudonym(ctx, "patient-42", "research", true)
		require.NoError(t, err)
		assert.NotEqual(t, a.Pseudonym, b.Pseudonym)

		// A billing pseudonym must not resolve under the research purpose.
		_, err = svc.ReversePseudonym(ctx, a.Pseudonym, "research", Authorization{ActorID: "auditor-1"})
		require.Error(t, err)
	})

	t.Run("rejects empty inputs", func(t *testing.T) {
		_, err := svc.CreatePseudonym(ctx, "", "analytics", true)
		assert.True(t, errors.IsCode(err, "MISSING_IDENTIFIER"))

		_, err = svc.CreatePseudonym(ctx, "patient-42", "", true)
		assert.True(t, errors.IsCode(err, "MISSING_PURPOSE"))
	})
}

func TestReversePseudonymFailsClosed(t *testing.T) {
	ctx := context.Background()

	t.Run("denied without authorization", func(t *testing.T) {
		svc := newTestEngine(t, false)
		pseudonym, err := svc.CreatePseudonym(ctx, "patient-42", "analytics", true)
		require.NoError(t, err)

		_, err = svc.ReversePseudonym(ctx, pseudonym.Pseudonym, "analytics", Authorization{ActorID: "intruder"})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeUnauthorizedReversal))
	})

	t.Run("denied when the grant names a different purpose", func(t *testing.T) {
		svc := newTestEngine(t, true)
		pseudonym, err := svc.CreatePseudonym(ctx, "patient-42", "care", true)
		require.NoError(t, err)

		// The authorizer would approve, but the authorization was
		// issued for billing, not care.
		_, err = svc.ReversePseudonym(ctx, pseudonym.Pseudonym, "care", Authorization{
			ActorID: "auditor-1",
			Purpose: "billing",
			Grant:   "court-order-7",
		})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeUnauthorizedReversal))
	})

	t.Run("denied without an authorizer at all", func(t *testing.T) {
		svc, err := NewEngine(Config{
			PseudonymSecret: []byte("0123456789abcdef0123456789abcdef"),
		}, zap.NewNop(), newMemoryMappings(), nil, nil)
		require.NoError(t, err)

		_, err = svc.ReversePseudonym(ctx, "deadbeef", "analytics", Authorization{ActorID: "auditor-1"})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeUnauthorizedReversal))
	})
}

func TestGroupKeyDeterminism(t *testing.T) {
	record := privacy.Record{"a": 1, "b": "x"}
	assert.Equal(t, groupKey(record, []string{"a", "b"}), groupKey(record, []string{"a", "b"}))
	assert.NotEqual(t, groupKey(record, []string{"a", "b"}), groupKey(record, []string{"b", "a"}))
}

func BenchmarkApplyKAnonymity(b *testing.B) {
	svc, err := NewEngine(Config{}, zap.NewNop(), nil, nil, nil)
	if err != nil {
		b.Fatal(err)
	}

	records := make([]privacy.Record, 1000)
	for i := range records {
		records[i] = privacy.Record{
			"age":  float64(20 + i%60),
			"city": fmt.Sprintf("city-%d", i%10),
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = svc.ApplyKAnonymity(context.Background(), records, []string{"city"}, 5)
	}
}
