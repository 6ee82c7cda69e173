package cfn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redactyl/cfnsanitizer/internal/document"
)

const cdkTemplate = `{
  "Parameters": {
    "BootstrapVersion": {"Type": "AWS::SSM::Parameter::Value<String>", "Default": "/cdk-bootstrap/hnb659fds/version"},
    "Internal": {"Type": "String", "Description": "generated [cdk:skip]"},
    "Env": {"Type": "String", "Default": "dev"}
  },
  "Conditions": {
    "CDKMetadataAvailable": {"Fn::Equals": ["a", "a"]},
    "IsProd": {"Fn::Equals": [{"Ref": "Env"}, "prod"]}
  },
  "Resources": {
    "CDKMetadata": {"Type": "AWS::CDK::Metadata", "Properties": {"Analytics": "v2:deflate64:abc"}},
    "Other": {"Type": "AWS::SNS::Topic", "Condition": "CDKMetadataAvailable"},
    "Bucket": {
      "Type": "AWS::S3::Bucket",
      "Metadata": {"aws:cdk:path": "Stack/Bucket/Resource"}
    },
    "Queue": {
      "Type": "AWS::SQS::Queue",
      "Metadata": {"aws:cdk:path": "Stack/Queue/Resource", "owner": "team"}
    }
  },
  "Rules": {
    "CheckBootstrapVersion": {"Assertions": []}
  },
  "Outputs": {}
}`

func decode(t *testing.T, s string) *document.Node {
	t.Helper()
	n, err := document.Decode([]byte(s))
	require.NoError(t, err)
	return n
}

func keys(n *document.Node) []string {
	var out []string
	for _, p := range n.Pairs {
		out = append(out, p.Key)
	}
	return out
}

func TestClean_RemovesCDKElements(t *testing.T) {
	in := decode(t, cdkTemplate)
	before := in.Clone()

	out := Clean(in, CleanOptions{})
	assert.Equal(t, []string{"Parameters", "Conditions", "Resources"}, keys(out), "Rules and empty Outputs are dropped")

	params, _ := out.Get("Parameters")
	assert.Equal(t, []string{"Env"}, keys(params))

	conds, _ := out.Get("Conditions")
	assert.Equal(t, []string{"IsProd"}, keys(conds))

	res, _ := out.Get("Resources")
	assert.Equal(t, []string{"Bucket", "Queue"}, keys(res))

	bucket, _ := res.Get("Bucket")
	assert.Equal(t, []string{"Type"}, keys(bucket), "Metadata with only aws:cdk:path is removed")

	queue, _ := res.Get("Queue")
	meta, _ := queue.Get("Metadata")
	assert.Equal(t, []string{"owner"}, keys(meta))

	assert.True(t, document.Equal(before, in), "input must not be modified")
}

func TestClean_KeepResourceMetadata(t *testing.T) {
	out := Clean(decode(t, cdkTemplate), CleanOptions{KeepResourceMetadata: true})
	res, _ := out.Get("Resources")
	bucket, _ := res.Get("Bucket")
	meta, ok := bucket.Get("Metadata")
	require.True(t, ok)
	assert.Equal(t, "Stack/Bucket/Resource", meta.GetString("aws:cdk:path"))
}

func TestIsCDKTemplate(t *testing.T) {
	assert.True(t, IsCDKTemplate(decode(t, cdkTemplate)))
	assert.True(t, IsCDKTemplate(decode(t, `{"Rules": {"CheckBootstrapVersion": {}}}`)))
	assert.False(t, IsCDKTemplate(decode(t, `{"Resources": {"B": {"Type": "AWS::S3::Bucket"}}}`)))
	assert.False(t, IsCDKTemplate(decode(t, `[1, 2]`)))
}

func TestIsDeclarationSection(t *testing.T) {
	assert.True(t, IsDeclarationSection("Parameters"))
	assert.True(t, IsDeclarationSection("Resources"))
	assert.False(t, IsDeclarationSection("Description"))
	assert.False(t, IsDeclarationSection("parameters"))
}

func TestIsTemplate(t *testing.T) {
	assert.True(t, IsTemplate(decode(t, `{"Resources": {"B": {"Type": "AWS::S3::Bucket"}}}`)))
	assert.True(t, IsTemplate(decode(t, `AWSTemplateFormatVersion: "2010-09-09"`)))
	assert.False(t, IsTemplate(decode(t, `{"name": "pkg", "version": "1.0.0"}`)))
	assert.False(t, IsTemplate(decode(t, `{"Resources": []}`)))
	assert.False(t, IsTemplate(decode(t, `- a`)))
}
