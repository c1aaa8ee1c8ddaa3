package risk

import (
	"context"
	"strings"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/security"
	domaintoken "github.com/davidleathers/healthcare-security-pipeline/internal/domain/token"
)

// Built-in compliance predicates covering the clinical access rules.
// Deployments append their own predicates at construction time.

// ConsentForRecordAccess flags access to clinical records by tokens
// carrying no consent level.
type ConsentForRecordAccess struct {
	// RecordPathPrefix marks the routes that touch clinical records.
	RecordPathPrefix string
}

func (p *ConsentForRecordAccess) Name() string { return "consent_for_record_access" }

func (p *ConsentForRecordAccess) Evaluate(ctx context.Context, req *security.RequestDescriptor, identity *domaintoken.Claims) ComplianceFinding {
	prefix := p.RecordPathPrefix
	if prefix == "" {
		prefix = "/records"
	}
	touchesRecord := strings.HasPrefix(req.Path, prefix) ||
		(identity != nil && identity.SubjectRecordID != "")
	if !touchesRecord {
		return ComplianceFinding{Status: security.ComplianceCompliant}
	}
	if identity == nil || identity.ConsentLevel == "" {
		return ComplianceFinding{
			Status:         security.ComplianceViolation,
			Recommendation: "record access requires a documented consent level",
		}
	}
	return ComplianceFinding{Status: security.ComplianceCompliant}
}

// TelemedicineMFA flags elevated telemedicine sessions without MFA
type TelemedicineMFA struct{}

func (p *TelemedicineMFA) Name() string { return "telemedicine_mfa" }

func (p *TelemedicineMFA) Evaluate(ctx context.Context, req *security.RequestDescriptor, identity *domaintoken.Claims) ComplianceFinding {
	if identity == nil || identity.SessionKind != domaintoken.SessionTelemedicine {
		return ComplianceFinding{Status: security.ComplianceCompliant}
	}
	if !identity.MFAVerified {
		return ComplianceFinding{
			Status:         security.ComplianceViolation,
			Recommendation: "telemedicine sessions require multi-factor authentication",
		}
	}
	return ComplianceFinding{Status: security.ComplianceCompliant}
}

// ProviderForRecord warns when a record reference lacks an attending
// provider claim. Warning-grade: legacy tokens predate the claim.
type ProviderForRecord struct{}

func (p *ProviderForRecord) Name() string { return "provider_for_record" }

func (p *ProviderForRecord) Evaluate(ctx context.Context, req *security.RequestDescriptor, identity *domaintoken.Claims) ComplianceFinding {
	if identity == nil || identity.SubjectRecordID == "" {
		return ComplianceFinding{Status: security.ComplianceCompliant}
	}
	if identity.ProviderID == "" {
		return ComplianceFinding{
			Status:         security.ComplianceWarning,
			Recommendation: "record-scoped tokens should carry the attending provider",
		}
	}
	return ComplianceFinding{Status: security.ComplianceCompliant}
}
