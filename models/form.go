package models

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"farmer-registration/apperr"
)

// PhonePattern matches a 10-digit Indian mobile number
var PhonePattern = regexp.MustCompile(`^[6-9]\d{9}$`)

// Crop is one entry of the multiple-crops list
type Crop struct {
	Name    string `json:"name"`
	Area    string `json:"area"`
	Variety string `json:"variety"`
}

// FarmerForm is the full registration detail form
type FarmerForm struct {
	RegistrationDate        string `json:"registrationDate" validate:"required" label:"Registration Date"`
	FarmerName              string `json:"farmerName" validate:"required" label:"Farmer Name"`
	FatherSpouseName        string `json:"fatherSpouseName" validate:"required" label:"Father / Spouse Name"`
	ContactNumber           string `json:"contactNumber" validate:"required,mobile" label:"Contact Number"`
	EmailID                 string `json:"emailId" validate:"omitempty,email" label:"Email ID"`
	AadhaarFarmerID         string `json:"aadhaarFarmerId"`
	VillagePanchayat        string `json:"villagePanchayat" validate:"required" label:"Village / Panchayat"`
	MandalBlock             string `json:"mandalBlock" validate:"required" label:"Mandal / Block"`
	District                string `json:"district" validate:"required" label:"District"`
	State                   string `json:"state" validate:"required" label:"State"`
	KhasraPassbook          string `json:"khasraPassbook"`
	PlotNo                  string `json:"plotNo"`
	TotalLand               string `json:"totalLand" validate:"required" label:"Total Land"`
	LandUnit                string `json:"landUnit"`
	FarmingAreaUnit         string `json:"farmingAreaUnit,omitempty"`
	AreaNaturalFarming      string `json:"areaNaturalFarming" validate:"required" label:"Area Under Natural Farming"`
	PresentCrop             string `json:"presentCrop"`
	SowingDate              string `json:"sowingDate" validate:"required" label:"Sowing Date"`
	HarvestingDate          string `json:"harvestingDate"`
	CropTypes               string `json:"cropTypes" validate:"required" label:"Crop Types"`
	OtherCropType           string `json:"otherCropType,omitempty"`
	Crops                   []Crop `json:"crops,omitempty"`
	FarmingPractice         string `json:"farmingPractice" validate:"required" label:"Farming Practice"`
	FarmingExperience       string `json:"farmingExperience" validate:"required" label:"Farming Experience"`
	IrrigationSource        string `json:"irrigationSource" validate:"required" label:"Irrigation Source"`
	Livestock               string `json:"livestock"`
	WillingToAdopt          string `json:"willingToAdopt"`
	TrainingRequired        string `json:"trainingRequired"`
	LocalGroupName          string `json:"localGroupName"`
	PreferredCroppingSeason string `json:"preferredCroppingSeason"`
	Remarks                 string `json:"remarks"`
	TermsAgreement          bool   `json:"termsAgreement" validate:"required" label:"terms"`
	NaturalInputs           string `json:"naturalInputs"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func formValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			if label := f.Tag.Get("label"); label != "" {
				return label
			}
			return f.Name
		})
		err := validate.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
			return PhonePattern.MatchString(fl.Field().String())
		})
		if err != nil {
			panic(fmt.Sprintf("models: register mobile validation: %v", err))
		}
	})
	return validate
}

// Normalize trims every free-text field and drops crops without a name
func (f *FarmerForm) Normalize() {
	v := reflect.ValueOf(f).Elem()
	for i := 0; i < v.NumField(); i++ {
		if fv := v.Field(i); fv.Kind() == reflect.String {
			fv.SetString(strings.TrimSpace(fv.String()))
		}
	}
	crops := f.Crops[:0]
	for _, c := range f.Crops {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		c.Area = strings.TrimSpace(c.Area)
		c.Variety = strings.TrimSpace(c.Variety)
		crops = append(crops, c)
	}
	f.Crops = crops
}

// Validate checks required fields and formats. Problems are reported with the
// labels the form shows, in form order.
func (f FarmerForm) Validate() error {
	err := formValidator().Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch {
		case fe.Field() == "terms":
			problems = append(problems, "Accept the terms and conditions")
		case fe.Tag() == "mobile":
			problems = append(problems, "Valid 10-digit mobile number")
		case fe.Tag() == "email":
			problems = append(problems, "Valid email address")
		default:
			problems = append(problems, fe.Field())
		}
	}
	return apperr.InvalidForm(problems)
}
