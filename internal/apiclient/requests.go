package apiclient

import (
	"regexp"
	"strings"

	"queuehive/internal/models"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLength = 8

// ValidationErrors is returned before any request is sent when local field
// checks fail.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, item := range v {
		parts = append(parts, item.Field+": "+item.Message)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

type validator struct {
	errs ValidationErrors
}

func (v *validator) require(field, value, message string) {
	if strings.TrimSpace(value) == "" {
		v.errs = append(v.errs, FieldError{Field: field, Message: message})
	}
}

func (v *validator) check(ok bool, field, message string) {
	if !ok {
		v.errs = append(v.errs, FieldError{Field: field, Message: message})
	}
}

func (v *validator) email(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.errs = append(v.errs, FieldError{Field: field, Message: "Email cannot be blank."})
		return
	}
	v.check(emailPattern.MatchString(value), field, "Please enter a valid email address.")
}

func (v *validator) password(field, value string) {
	if value == "" {
		v.errs = append(v.errs, FieldError{Field: field, Message: "Password cannot be blank."})
		return
	}
	v.check(len(value) >= minPasswordLength, field, "Password must be at least 8 characters long.")
}

func (v *validator) err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return v.errs
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	var v validator
	v.email("email", r.Email)
	v.require("password", r.Password, "Password cannot be blank.")
	return v.err()
}

type RegisterRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (r RegisterRequest) Validate() error {
	var v validator
	v.require("fullName", r.FullName, "Full name cannot be blank.")
	v.email("email", r.Email)
	v.require("phone", r.Phone, "Phone number cannot be blank.")
	v.password("password", r.Password)
	return v.err()
}

type RegisterCompanyRequest struct {
	FullName           string `json:"fullName"`
	Email              string `json:"email"`
	Password           string `json:"password"`
	Phone              string `json:"phone"`
	CompanyName        string `json:"companyName"`
	CompanyDescription string `json:"companyDescription,omitempty"`
	CompanyLocation    string `json:"companyLocation,omitempty"`
	CompanyCategory    string `json:"companyCategory,omitempty"`
}

func (r RegisterCompanyRequest) Validate() error {
	var v validator
	v.require("fullName", r.FullName, "Full name cannot be blank.")
	v.email("email", r.Email)
	v.require("phone", r.Phone, "Phone number cannot be blank.")
	v.password("password", r.Password)
	v.require("companyName", r.CompanyName, "Company name cannot be blank.")
	return v.err()
}

type CreateCompanyRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

func (r CreateCompanyRequest) Validate() error {
	var v validator
	v.require("name", r.Name, "Company name cannot be blank.")
	return v.err()
}

type UpdateCompanyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Category    string `json:"category,omitempty"`
}

func (r UpdateCompanyRequest) Validate() error {
	var v validator
	v.require("name", r.Name, "Company name cannot be blank.")
	return v.err()
}

type CreateServiceRequest struct {
	CompanyID          int64  `json:"companyId"`
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	AverageServiceTime int    `json:"averageServiceTime"`
}

func (r CreateServiceRequest) Validate() error {
	var v validator
	v.check(r.CompanyID > 0, "companyId", "Company is required.")
	v.require("name", r.Name, "Service name cannot be blank.")
	v.check(r.AverageServiceTime > 0, "averageServiceTime", "Average service time must be greater than 0.")
	return v.err()
}

type UpdateServiceRequest struct {
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	AverageServiceTime int    `json:"averageServiceTime"`
}

func (r UpdateServiceRequest) Validate() error {
	var v validator
	v.require("name", r.Name, "Service name cannot be blank.")
	v.check(r.AverageServiceTime > 0, "averageServiceTime", "Average service time must be greater than 0.")
	return v.err()
}

type CreateTokenRequest struct {
	UserID    int64 `json:"userId"`
	ServiceID int64 `json:"serviceId"`
}

func (r CreateTokenRequest) Validate() error {
	var v validator
	v.check(r.UserID > 0, "userId", "User is required.")
	v.check(r.ServiceID > 0, "serviceId", "Service is required.")
	return v.err()
}

type UpdateProfileRequest struct {
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

func (r UpdateProfileRequest) Validate() error {
	var v validator
	v.require("fullName", r.FullName, "Full name cannot be blank.")
	return v.err()
}

type UpdatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (r UpdatePasswordRequest) Validate() error {
	var v validator
	v.require("currentPassword", r.CurrentPassword, "Current password cannot be blank.")
	v.password("newPassword", r.NewPassword)
	return v.err()
}

type statusUpdate struct {
	status models.Status
}

func (s statusUpdate) Validate() error {
	if _, ok := models.ParseStatus(string(s.status)); !ok {
		return ValidationErrors{{Field: "status", Message: "Unknown token status."}}
	}
	return nil
}
