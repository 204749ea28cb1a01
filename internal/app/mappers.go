package app

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/biter777/countries"
	"github.com/iancoleman/strcase"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"
	"github.com/ttacon/libphonenumber"

	"barefoot_sync/internal/domain"
)

/********** alias registries (single source of truth) **********/

var propertyAliases = map[string][]string{
	"remote_id":     {"PropertyID", "PropertyId", "ID", "id", "PropertyNumber", "propertyid", "addressid"},
	"title":         {"Name", "name", "PropertyName", "PropertyTitle", "Title"},
	"description":   {"Description", "Extdescription", "PropertyDescription", "LongDescription"},
	"property_type": {"PropertyType", "UnitType", "Type"},
	"status":        {"Status"},
	"street":        {"Street", "PropAddress", "PropAddressNew", "Address", "Address1"},
	"street2":       {"Street2", "Address2"},
	"city":          {"City", "Town"},
	"state":         {"State", "Province"},
	"zip":           {"Zip", "ZipCode", "PostalCode"},
	"country":       {"Country", "CountryCode"},
	"region":        {"Region", "Area", "Location"},
	"lat":           {"Latitude", "Lat"},
	"lon":           {"Longitude", "Lon", "Lng"},
	"min_price":     {"Minprice", "MinPrice", "MinRate"},
	"max_price":     {"Maxprice", "MaxPrice", "MaxRate"},
	"occupancy":     {"Occupancy", "MaxOccupancy", "Sleeps", "SleepsBeds"},
	"bedrooms":      {"Bedrooms", "BedRooms", "NumBedrooms"},
	"bathrooms":     {"Bathrooms", "BathRooms", "NumBathrooms"},
	"phone":         {"Phone", "ContactPhone", "OwnerPhone"},
	"amenities":     {"PropertyAmenities", "Amenities"},
}

var imageAliases = map[string][]string{
	"url":      {"imagepath", "ImageUrl", "Url", "ImagePath", "Image"},
	"caption":  {"imageDesc", "Caption", "Description"},
	"position": {"imageNo", "ImageNumber", "Sequence", "Position"},
}

// amenityFlags are boolean-ish fields that turn on a canonical amenity.
var amenityFlags = []struct {
	label  string
	fields []string
}{
	{"Pool", []string{"Pool", "SwimmingPool"}},
	{"Hot Tub", []string{"HotTub", "Hottub", "Jacuzzi"}},
	{"WiFi", []string{"Internet", "WiFi", "Wifi"}},
	{"Kitchen", []string{"Kitchen"}},
	{"Parking", []string{"Parking"}},
	{"Pet Friendly", []string{"PetsAllowed", "Pets", "PetFriendly"}},
}

// amenityKeywords match free-text amenity lists.
var amenityKeywords = map[string][]string{
	"Pool":         {"pool"},
	"Hot Tub":      {"hot tub", "hottub", "jacuzzi"},
	"WiFi":         {"wifi", "wi-fi", "internet", "wireless"},
	"Kitchen":      {"kitchen"},
	"Parking":      {"parking", "garage"},
	"Pet Friendly": {"pets", "pet friendly", "pet-friendly"},
}

/********** tiny helpers **********/

// firstString: first non-empty string for a named alias set.
func firstString(r Record, aliases map[string][]string, key string) *string {
	for _, p := range aliases[key] {
		if s, ok := r.StringForPath(p); ok {
			return &s
		}
	}
	return nil
}

func firstFloat(r Record, aliases map[string][]string, key string) *float64 {
	for _, p := range aliases[key] {
		if f, ok := r.FloatForPath(p); ok {
			return &f
		}
	}
	return nil
}

// firstInt ignores zero and negative counts, which the service uses as "unset".
func firstInt(r Record, aliases map[string][]string, key string) *int {
	for _, p := range aliases[key] {
		if n, ok := r.IntForPath(p); ok && n > 0 {
			x := int(n)
			return &x
		}
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func ptrStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// knownKeys is the lower-cased set of every alias, excluded from raw fields.
func knownKeys(registries ...map[string][]string) map[string]struct{} {
	set := make(map[string]struct{}, 64)
	for _, reg := range registries {
		for _, paths := range reg {
			for _, p := range paths {
				top := p
				if i := strings.IndexByte(top, '.'); i >= 0 {
					top = top[:i]
				}
				set[strings.ToLower(top)] = struct{}{}
			}
		}
	}
	for _, f := range amenityFlags {
		for _, k := range f.fields {
			set[strings.ToLower(k)] = struct{}{}
		}
	}
	return set
}

var propertyKnown = knownKeys(propertyAliases)

/********** property mapper **********/

var (
	errMissingID    = errors.New("missing property id")
	errMissingTitle = errors.New("missing name field")
)

// MapProperty builds the canonical property for one record. A record with
// no id or no title is rejected with a RecordValidation error.
func MapProperty(r Record) (domain.Property, error) {
	id := deref(firstString(r, propertyAliases, "remote_id"))
	if id == "" {
		return domain.Property{}, domain.RecordErr(domain.KindRecordValidation, "", errMissingID)
	}
	title := deref(firstString(r, propertyAliases, "title"))
	if title == "" {
		return domain.Property{}, domain.RecordErr(domain.KindRecordValidation, id, errMissingTitle)
	}

	p := domain.Property{
		RemoteID:     id,
		Title:        title,
		Description:  firstString(r, propertyAliases, "description"),
		PropertyType: firstString(r, propertyAliases, "property_type"),
		Status:       firstString(r, propertyAliases, "status"),
		Location:     mapLocation(r),
		MinPrice:     firstFloat(r, propertyAliases, "min_price"),
		MaxPrice:     firstFloat(r, propertyAliases, "max_price"),
		Occupancy:    firstInt(r, propertyAliases, "occupancy"),
		Bedrooms:     firstInt(r, propertyAliases, "bedrooms"),
		Bathrooms:    firstInt(r, propertyAliases, "bathrooms"),
	}
	p.Amenities = mapAmenities(r, p.Occupancy)
	p.ContactPhone = normalizePhone(deref(firstString(r, propertyAliases, "phone")), deref(p.Location.CountryCode))
	p.RawFields = rawFields(r, propertyKnown)
	p.Checksum = Checksum(p)
	return p, nil
}

func mapLocation(r Record) domain.Location {
	loc := domain.Location{
		Street:  firstString(r, propertyAliases, "street"),
		Street2: firstString(r, propertyAliases, "street2"),
		City:    firstString(r, propertyAliases, "city"),
		State:   firstString(r, propertyAliases, "state"),
		Zip:     firstString(r, propertyAliases, "zip"),
		Country: firstString(r, propertyAliases, "country"),
		Region:  firstString(r, propertyAliases, "region"),
		Lat:     firstFloat(r, propertyAliases, "lat"),
		Lon:     firstFloat(r, propertyAliases, "lon"),
	}
	// 0,0 is the service's placeholder for "not geocoded"
	if loc.Lat != nil && loc.Lon != nil && *loc.Lat == 0 && *loc.Lon == 0 {
		loc.Lat, loc.Lon = nil, nil
	}
	if loc.Country != nil {
		c := countries.ByName(*loc.Country) // will match on Alpha-2 / Alpha-3 / Name
		if c != countries.Unknown {
			loc.CountryCode = ptrStr(c.Alpha2())
		}
	}

	switch {
	case loc.City != nil && loc.State != nil:
		loc.Display = ptrStr(*loc.City + ", " + *loc.State)
	case loc.City != nil:
		loc.Display = loc.City
	case loc.Region != nil:
		loc.Display = loc.Region
	case loc.State != nil:
		loc.Display = loc.State
	}
	return loc
}

func mapAmenities(r Record, occupancy *int) []string {
	set := map[string]struct{}{}
	for _, f := range amenityFlags {
		for _, k := range f.fields {
			if on, ok := r.BoolForPath(k); ok && on {
				set[f.label] = struct{}{}
				break
			}
		}
	}
	if text := strings.ToLower(deref(firstString(r, propertyAliases, "amenities"))); text != "" {
		for label, words := range amenityKeywords {
			for _, w := range words {
				if strings.Contains(text, w) {
					set[label] = struct{}{}
					break
				}
			}
		}
	}
	if occupancy != nil {
		switch n := *occupancy; {
		case n >= 8:
			set["Large Group"] = struct{}{}
		case n >= 4:
			set["Family Friendly"] = struct{}{}
		case n <= 2:
			set["Romantic Getaway"] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// normalizePhone formats a number as E.164, using the property's country
// (default US) as the region for national numbers.
func normalizePhone(number, region string) *string {
	if strings.TrimSpace(number) == "" {
		return nil
	}
	if region == "" {
		region = "US"
	}
	num, err := libphonenumber.Parse(number, region)
	if err != nil {
		log.Debug().Err(err).Str("phone", number).Msg("unparseable phone kept as is")
		return ptrStr(strings.TrimSpace(number))
	}
	return ptrStr(libphonenumber.Format(num, libphonenumber.E164))
}

// rawFields keeps every field not consumed by an alias, keyed in snake_case.
func rawFields(r Record, known map[string]struct{}) []byte {
	out := "{}"
	for _, k := range r.Keys() {
		if _, ok := known[strings.ToLower(k)]; ok {
			continue
		}
		v := r.Get(k)
		if !v.Exists() {
			continue
		}
		var err error
		out, err = sjson.SetRaw(out, escapePath(strcase.ToSnake(k)), v.Raw)
		if err != nil {
			log.Error().Err(err).Str("context", "rawFields").Str("field", k).Msg("set raw field failed")
		}
	}
	return []byte(out)
}

func escapePath(k string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)
	return r.Replace(k)
}

// Checksum identifies the content of p; an update with an equal checksum is
// a no-op.
func Checksum(p domain.Property) string {
	p.Checksum = ""
	b, err := json.Marshal(p)
	if err != nil {
		log.Error().Err(err).Str("context", "Checksum").Msg("marshal property failed")
		return ""
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

/********** images mapper **********/

func MapImages(recs []Record) []domain.PropertyImage {
	out := make([]domain.PropertyImage, 0, len(recs))
	seen := map[string]struct{}{}
	for i, r := range recs {
		url := deref(firstString(r, imageAliases, "url"))
		if url == "" {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		pos := i + 1
		if p := firstString(r, imageAliases, "position"); p != nil {
			if n, err := strconv.Atoi(*p); err == nil {
				pos = n
			}
		}
		out = append(out, domain.PropertyImage{
			Position: pos,
			URL:      url,
			Caption:  firstString(r, imageAliases, "caption"),
		})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Position < out[b].Position })
	return out
}

// snapshotJSON collects records into a JSON array for rates and availability.
func snapshotJSON(recs []Record) []byte {
	parts := make([]string, 0, len(recs))
	for _, r := range recs {
		parts = append(parts, r.Raw())
	}
	return []byte("[" + strings.Join(parts, ",") + "]")
}
