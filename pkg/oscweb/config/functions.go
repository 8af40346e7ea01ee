package config

import (
	"github.com/hashicorp/go-cty-funcs/cidr"
	"github.com/hashicorp/go-cty-funcs/crypto"
	"github.com/hashicorp/go-cty-funcs/encoding"
	"github.com/hashicorp/go-cty-funcs/filesystem"
	"github.com/hashicorp/go-cty-funcs/uuid"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// GetStandardLibraryFunctions returns the functions available to every
// expression in a configuration file.
func GetStandardLibraryFunctions() map[string]function.Function {
	return map[string]function.Function{
		// String functions
		"upper":     stdlib.UpperFunc,
		"lower":     stdlib.LowerFunc,
		"substr":    stdlib.SubstrFunc,
		"strlen":    stdlib.StrlenFunc,
		"split":     stdlib.SplitFunc,
		"join":      stdlib.JoinFunc,
		"chomp":     stdlib.ChompFunc,
		"trim":      stdlib.TrimFunc,
		"trimspace": stdlib.TrimSpaceFunc,
		"replace":   stdlib.ReplaceFunc,
		"format":    stdlib.FormatFunc,
		"regex":     stdlib.RegexFunc,

		// Numeric functions
		"abs":   stdlib.AbsoluteFunc,
		"ceil":  stdlib.CeilFunc,
		"floor": stdlib.FloorFunc,
		"max":   stdlib.MaxFunc,
		"min":   stdlib.MinFunc,
		"pow":   stdlib.PowFunc,

		// Collection functions
		"element":  stdlib.ElementFunc,
		"length":   stdlib.LengthFunc,
		"coalesce": stdlib.CoalesceFunc,
		"concat":   stdlib.ConcatFunc,
		"contains": stdlib.ContainsFunc,
		"distinct": stdlib.DistinctFunc,
		"flatten":  stdlib.FlattenFunc,
		"keys":     stdlib.KeysFunc,
		"lookup":   stdlib.LookupFunc,
		"merge":    stdlib.MergeFunc,
		"range":    stdlib.RangeFunc,
		"slice":    stdlib.SliceFunc,

		// Encoding functions
		"jsondecode": stdlib.JSONDecodeFunc,
		"jsonencode": stdlib.JSONEncodeFunc,

		// Type conversion functions
		"tostring": stdlib.MakeToFunc(cty.String),
		"tonumber": stdlib.MakeToFunc(cty.Number),
		"tobool":   stdlib.MakeToFunc(cty.Bool),

		// CIDR functions, for deriving peer addresses
		"cidrhost":    cidr.HostFunc,
		"cidrnetmask": cidr.NetmaskFunc,
		"cidrsubnet":  cidr.SubnetFunc,

		// Crypto functions
		"md5":    crypto.Md5Func,
		"sha1":   crypto.Sha1Func,
		"sha256": crypto.Sha256Func,
		"sha512": crypto.Sha512Func,

		"base64decode": encoding.Base64DecodeFunc,
		"base64encode": encoding.Base64EncodeFunc,
		"urlencode":    encoding.URLEncodeFunc,

		// Filesystem functions
		"abspath":    filesystem.AbsPathFunc,
		"basename":   filesystem.BasenameFunc,
		"dirname":    filesystem.DirnameFunc,
		"pathexpand": filesystem.PathExpandFunc,

		"uuidv4": uuid.V4Func,
		"uuidv5": uuid.V5Func,

		"typeof": TypeOfFunc,
		"error":  ErrorFunc,
		"diff":   DiffFunc,
		"patch":  PatchFunc,
	}
}
