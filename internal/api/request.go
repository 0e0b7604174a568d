package api

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omeyang/xtrack/pkg/business/xtracking"
)

const (
	// MinWeight 最小重量（千克）。
	MinWeight = 0.001
	// MaxWeight 最大重量（千克）。
	MaxWeight = 999.999

	maxWeightDecimals = 3
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// NextRequest 分配运单号的查询参数。
type NextRequest struct {
	OriginCountryID      string `form:"origin_country_id" binding:"required,len=2,alpha,uppercase"`
	DestinationCountryID string `form:"destination_country_id" binding:"required,len=2,alpha,uppercase"`
	Weight               string `form:"weight" binding:"required"`
	CreatedAt            string `form:"created_at" binding:"required"`
	CustomerID           string `form:"customer_id" binding:"required,uuid"`
	CustomerName         string `form:"customer_name" binding:"required,max=100"`
	CustomerSlug         string `form:"customer_slug" binding:"required,max=100"`
}

// ToInput 完成 binding 标签无法表达的校验，并转换为生成输入。
func (r *NextRequest) ToInput() (xtracking.GenerationInput, error) {
	weight, err := ParseWeight(r.Weight)
	if err != nil {
		return xtracking.GenerationInput{}, err
	}
	createdAt, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		return xtracking.GenerationInput{}, fmt.Errorf(
			"created_at must be a valid RFC 3339 timestamp (e.g. '2018-11-20T19:29:32+08:00'): %w", err)
	}
	customerID, err := uuid.Parse(r.CustomerID)
	if err != nil {
		return xtracking.GenerationInput{}, fmt.Errorf("customer_id must be a valid UUID: %w", err)
	}
	if strings.TrimSpace(r.CustomerName) == "" {
		return xtracking.GenerationInput{}, errors.New("customer_name must not be blank")
	}
	if !slugPattern.MatchString(r.CustomerSlug) {
		return xtracking.GenerationInput{}, errors.New(
			"customer_slug must be kebab-case (lowercase letters, digits and single hyphens)")
	}
	return xtracking.GenerationInput{
		Origin:       r.OriginCountryID,
		Destination:  r.DestinationCountryID,
		CustomerID:   customerID,
		CustomerName: r.CustomerName,
		CustomerSlug: r.CustomerSlug,
		Weight:       weight,
		CreatedAt:    createdAt,
	}, nil
}

// ParseWeight 解析重量：范围 [MinWeight, MaxWeight]，最多 3 位小数。
func ParseWeight(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("weight must be a valid number: %q", s)
	}
	if v < MinWeight || v > MaxWeight {
		return 0, fmt.Errorf("weight must be between %.3f and %.3f kg", MinWeight, MaxWeight)
	}
	if _, frac, ok := strings.Cut(s, "."); ok && len(frac) > maxWeightDecimals {
		return 0, fmt.Errorf("weight can have at most %d decimal places", maxWeightDecimals)
	}
	return v, nil
}

// SearchRequest 搜索参数，全部可选。
type SearchRequest struct {
	TrackingNumber       string `form:"tracking_number"`
	CustomerName         string `form:"customer_name"`
	CustomerSlug         string `form:"customer_slug"`
	OriginCountryID      string `form:"origin_country_id"`
	DestinationCountryID string `form:"destination_country_id"`
}

// Criteria 转换为搜索条件。
func (r *SearchRequest) Criteria() xtracking.Criteria {
	return xtracking.Criteria{
		TrackingNumber: r.TrackingNumber,
		CustomerName:   r.CustomerName,
		CustomerSlug:   r.CustomerSlug,
		Origin:         r.OriginCountryID,
		Destination:    r.DestinationCountryID,
	}
}

// ListRequest 分页参数，页码从 0 开始。
type ListRequest struct {
	Page int64 `form:"page,default=0" binding:"min=0"`
	Size int64 `form:"size,default=10" binding:"min=1,max=100"`
}
