package stores

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// DN holds the distinguished-name fields for generated certificates.
// CommonName is substituted per node or per authority.
type DN struct {
	Country            string `mapstructure:"country"`
	State              string `mapstructure:"state"`
	Locality           string `mapstructure:"locality"`
	Organization       string `mapstructure:"organization"`
	OrganizationalUnit string `mapstructure:"organizational_unit"`
	CommonName         string `mapstructure:"common_name"`
}

// Empty reports whether no field is set.
func (d DN) Empty() bool {
	return d.Country == "" && d.State == "" && d.Locality == "" &&
		d.Organization == "" && d.OrganizationalUnit == "" && d.CommonName == ""
}

// SubjectOpenSSL renders the slash-separated form openssl expects,
// with cn overriding the common name.
func (d DN) SubjectOpenSSL(cn string) string {
	var b strings.Builder
	write := func(key, val string) {
		if val != "" {
			fmt.Fprintf(&b, "/%s=%s", key, val)
		}
	}
	write("C", d.Country)
	write("ST", d.State)
	write("L", d.Locality)
	write("O", d.Organization)
	write("OU", d.OrganizationalUnit)
	write("CN", cn)
	return b.String()
}

// SubjectKeytool renders the comma-separated RFC 1779 form keytool
// expects, with cn overriding the common name.
func (d DN) SubjectKeytool(cn string) string {
	var parts []string
	add := func(key, val string) {
		if val != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", key, val))
		}
	}
	add("CN", cn)
	add("OU", d.OrganizationalUnit)
	add("O", d.Organization)
	add("L", d.Locality)
	add("ST", d.State)
	add("C", d.Country)
	return strings.Join(parts, ", ")
}

// LoadDN reads the distinguished-name fields from the CA config file.
func LoadDN(fs afero.Fs, path string) (DN, error) {
	vp := viper.New()
	vp.SetFs(fs)
	vp.SetConfigFile(path)
	if err := vp.ReadInConfig(); err != nil {
		return DN{}, fmt.Errorf("%w: read ca config %s: %v", ErrConfig, path, err)
	}
	var dn DN
	if err := vp.Unmarshal(&dn); err != nil {
		return DN{}, fmt.Errorf("%w: decode ca config: %v", ErrConfig, err)
	}
	return dn, nil
}

// ParseDN decodes a directly supplied comma-separated DN string such as
// "CN=node1, OU=ops, O=example, C=US".
func ParseDN(s string) (DN, error) {
	var dn DN
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return DN{}, fmt.Errorf("%w: malformed dn component %q", ErrConfig, part)
		}
		val := strings.TrimSpace(kv[1])
		switch strings.ToUpper(strings.TrimSpace(kv[0])) {
		case "C":
			dn.Country = val
		case "ST":
			dn.State = val
		case "L":
			dn.Locality = val
		case "O":
			dn.Organization = val
		case "OU":
			dn.OrganizationalUnit = val
		case "CN":
			dn.CommonName = val
		default:
			return DN{}, fmt.Errorf("%w: unknown dn component %q", ErrConfig, part)
		}
	}
	return dn, nil
}
