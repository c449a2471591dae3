package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	missionModel "reward_engine/internal/domain/mission/model"
	"reward_engine/pkg/errs"

	"github.com/go-playground/validator/v10"
)

// ProofValidator 按任务类型解码并校验凭证：结构标签 + 任务规则参数
type ProofValidator struct {
	validate *validator.Validate
}

func NewProofValidator() *ProofValidator {
	v := validator.New()
	// 错误信息使用 json 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &ProofValidator{validate: v}
}

// Validate 校验通过时返回解码后的凭证；原始载荷由调用方原样保存
func (v *ProofValidator) Validate(schema missionModel.ProofSchema, raw []byte) (missionModel.Proof, error) {
	proof := schema.New()
	if proof == nil {
		return nil, fmt.Errorf("%w: unsupported mission type %q", errs.ErrInvalidProof, schema.Type)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(proof); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidProof, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after proof object", errs.ErrInvalidProof)
	}

	if err := v.validate.Struct(proof); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
			}
			return nil, fmt.Errorf("%w: %s", errs.ErrInvalidProof, strings.Join(fields, ", "))
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidProof, err)
	}

	if err := checkBounds(proof, schema.Descriptor); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidProof, err)
	}
	return proof, nil
}

func checkBounds(proof missionModel.Proof, d missionModel.SchemaDescriptor) error {
	switch p := proof.(type) {
	case *missionModel.ChallengeProof:
		if *p.StudyHours > d.MaxStudyHours {
			return fmt.Errorf("studyHours %.1f exceeds %.1f", *p.StudyHours, d.MaxStudyHours)
		}
	case *missionModel.SNSProof:
		if len(d.Platforms) > 0 && !contains(d.Platforms, p.Platform) {
			return fmt.Errorf("platform %q is not accepted", p.Platform)
		}
	case *missionModel.ReviewProof:
		n := len(p.PlatformURLs)
		if n < d.MinPlatformURLs || n > d.MaxPlatformURLs {
			return fmt.Errorf("platformUrls needs %d..%d entries, got %d", d.MinPlatformURLs, d.MaxPlatformURLs, n)
		}
		seen := make(map[string]struct{}, n)
		for _, u := range p.PlatformURLs {
			if _, dup := seen[u]; dup {
				return fmt.Errorf("duplicate platform url %q", u)
			}
			seen[u] = struct{}{}
		}
	case *missionModel.ReferralProof:
		if len(p.Referees) > d.MaxReferees {
			return fmt.Errorf("at most %d referees", d.MaxReferees)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
