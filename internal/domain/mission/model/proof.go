package model

import "strings"

// 默认规则
const (
	DefaultMaxStudyHours   = 14
	DefaultMinPlatformURLs = 3
	DefaultMaxPlatformURLs = 10
	DefaultMaxReferees     = 20
)

// Proof 按任务类型区分的凭证，每种类型一个结构体
type Proof interface {
	MissionType() MissionType
}

// ChallengeProof 学习时长挑战
type ChallengeProof struct {
	StudyHours          *float64 `json:"studyHours" validate:"required,gte=0"`
	CertificateImageRef string   `json:"certificateImageRef" validate:"required,max=512"`
}

// SNSProof 社交平台发帖
type SNSProof struct {
	Platform string `json:"platform" validate:"required,max=32"`
	PostURL  string `json:"postUrl" validate:"required,url,max=512"`
}

// ReviewProof 多平台评价
type ReviewProof struct {
	PlatformURLs []string `json:"platformUrls" validate:"required,min=1,dive,required,url,max=512"`
}

// Referee 被推荐人
type Referee struct {
	RefereeName  string `json:"refereeName" validate:"required,max=50"`
	RefereePhone string `json:"refereePhone" validate:"required,min=9,max=20"`
}

// ReferralProof 推荐好友
type ReferralProof struct {
	Referees []Referee `json:"referees" validate:"required,min=1,dive"`
}

// Phones 去重后的被推荐人手机号
func (p *ReferralProof) Phones() []string {
	seen := make(map[string]struct{}, len(p.Referees))
	phones := make([]string, 0, len(p.Referees))
	for _, r := range p.Referees {
		phone := strings.TrimSpace(r.RefereePhone)
		if phone == "" {
			continue
		}
		if _, ok := seen[phone]; ok {
			continue
		}
		seen[phone] = struct{}{}
		phones = append(phones, phone)
	}
	return phones
}

// AttendanceProof 到店打卡
type AttendanceProof struct {
	AttendedOn string `json:"attendedOn" validate:"required,datetime=2006-01-02"`
	CheckInRef string `json:"checkInRef" validate:"required,max=512"`
}

func (*ChallengeProof) MissionType() MissionType  { return TypeChallenge }
func (*SNSProof) MissionType() MissionType        { return TypeSNS }
func (*ReviewProof) MissionType() MissionType     { return TypeReview }
func (*ReferralProof) MissionType() MissionType   { return TypeReferral }
func (*AttendanceProof) MissionType() MissionType { return TypeAttendance }

// ProofSchema 某个任务类型的凭证契约：字段结构 + 规则参数。目录只提供契约，不做校验
type ProofSchema struct {
	Type       MissionType      `json:"type"`
	Required   []string         `json:"required"`
	Descriptor SchemaDescriptor `json:"descriptor"`
}

// New 该类型凭证的空结构体，用于解码
func (s ProofSchema) New() Proof {
	switch s.Type {
	case TypeChallenge:
		return &ChallengeProof{}
	case TypeSNS:
		return &SNSProof{}
	case TypeReview:
		return &ReviewProof{}
	case TypeReferral:
		return &ReferralProof{}
	case TypeAttendance:
		return &AttendanceProof{}
	}
	return nil
}

var requiredFields = map[MissionType][]string{
	TypeChallenge:  {"studyHours", "certificateImageRef"},
	TypeSNS:        {"platform", "postUrl"},
	TypeReview:     {"platformUrls"},
	TypeReferral:   {"referees"},
	TypeAttendance: {"attendedOn", "checkInRef"},
}

// SchemaFor 返回类型对应的契约，规则参数缺省时填充默认值
func SchemaFor(t MissionType, d SchemaDescriptor) ProofSchema {
	switch t {
	case TypeChallenge:
		if d.MaxStudyHours <= 0 {
			d.MaxStudyHours = DefaultMaxStudyHours
		}
	case TypeReview:
		if d.MinPlatformURLs <= 0 {
			d.MinPlatformURLs = DefaultMinPlatformURLs
		}
		if d.MaxPlatformURLs < d.MinPlatformURLs {
			d.MaxPlatformURLs = DefaultMaxPlatformURLs
			if d.MaxPlatformURLs < d.MinPlatformURLs {
				d.MaxPlatformURLs = d.MinPlatformURLs
			}
		}
	case TypeReferral:
		if d.MaxReferees <= 0 {
			d.MaxReferees = DefaultMaxReferees
		}
	}
	return ProofSchema{Type: t, Required: requiredFields[t], Descriptor: d}
}

// Schema 任务定义对应的凭证契约
func (m *MissionDefinition) Schema() ProofSchema {
	return SchemaFor(m.Type, m.ProofSchema)
}
