package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

type ChatParams struct {
	Prompt   string `json:"prompt" validate:"required"`
	Category string `json:"category"`
	TTS      bool   `json:"tts"`
}

type URLUploadParams struct {
	URL       string `json:"url" validate:"required,url"`
	MediaType string `json:"media_type" validate:"required"`
}

type DeleteParams struct {
	Paths []string `json:"paths" validate:"required,min=1,dive,required"`
}

var validate = validator.New()

func Validate(v Validater) map[string]string {
	return v.Validate()
}

// Validate trims the prompt first so a blank prompt counts as missing.
func (params *ChatParams) Validate() map[string]string {
	params.Prompt = strings.TrimSpace(params.Prompt)
	return validateStruct(params)
}

func (params *URLUploadParams) Validate() map[string]string {
	errs := validateStruct(params)
	if _, err := ParseCategory(params.MediaType); params.MediaType != "" && err != nil {
		if errs == nil {
			errs = make(map[string]string)
		}
		errs["MediaType"] = err.Error()
	}
	return errs
}

func (params *DeleteParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(s any) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"request": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, e := range verrs {
		out[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return out
}

type ChatResponse struct {
	Answer    string            `json:"answer"`
	Related   []RelatedDocument `json:"related,omitempty"`
	Audio     string            `json:"audio,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
